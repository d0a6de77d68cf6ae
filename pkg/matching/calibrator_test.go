package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestCalibrate(t *testing.T) {
	tests := []struct {
		name   string
		scores models.AttributeScores
		want   models.Confidence
	}{
		{
			name: "exact name with every attribute agreeing",
			scores: models.AttributeScores{
				NameScore: 100, ExactMatch: true, DateDiffDays: 10,
				SizeMatch: true, TypeMatch: true, CategoryCompatible: true,
			},
			want: models.ConfidenceExact,
		},
		{
			name: "exact name within sixty days and compatible category",
			scores: models.AttributeScores{
				NameScore: 100, ExactMatch: true, DateDiffDays: 50,
				CategoryCompatible: true,
			},
			want: models.ConfidenceStrong,
		},
		{
			name: "exact name with nothing else agreeing",
			scores: models.AttributeScores{
				NameScore: 100, ExactMatch: true, DateDiffDays: 200,
			},
			want: models.ConfidenceModerate,
		},
		{
			name: "near exact name with every attribute agreeing",
			scores: models.AttributeScores{
				NameScore: 95, DateDiffDays: 20,
				SizeMatch: true, TypeMatch: true, CategoryCompatible: true,
			},
			want: models.ConfidenceStrong,
		},
		{
			name: "near exact name within sixty days",
			scores: models.AttributeScores{
				NameScore: 92, DateDiffDays: 58, CategoryCompatible: true,
			},
			want: models.ConfidenceModerate,
		},
		{
			name: "strong name within sixty days",
			scores: models.AttributeScores{
				NameScore: 83, DateDiffDays: 40, CategoryCompatible: true,
			},
			want: models.ConfidenceModerate,
		},
		{
			name: "plausible name within ninety days",
			scores: models.AttributeScores{
				NameScore: 72, DateDiffDays: 85,
			},
			want: models.ConfidenceWeak,
		},
		{
			name: "score and window boundaries are inclusive",
			scores: models.AttributeScores{
				NameScore: 70, DateDiffDays: 90,
			},
			want: models.ConfidenceWeak,
		},
		{
			name: "strong name but incompatible category falls to weak",
			scores: models.AttributeScores{
				NameScore: 88, DateDiffDays: 30, SizeMatch: true, TypeMatch: true,
			},
			want: models.ConfidenceWeak,
		},
		{
			name: "name below seventy never qualifies",
			scores: models.AttributeScores{
				NameScore: 55, DateDiffDays: 5,
				SizeMatch: true, TypeMatch: true, CategoryCompatible: true,
			},
			want: models.ConfidenceNone,
		},
		{
			name: "near exact name too far apart in time",
			scores: models.AttributeScores{
				NameScore: 95, DateDiffDays: 120,
				SizeMatch: true, TypeMatch: true, CategoryCompatible: true,
			},
			want: models.ConfidenceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calibrate(tt.scores)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestCalibrateNeverProducesReview(t *testing.T) {
	// The review level belongs to the anomaly pass alone.
	for _, nameScore := range []int{0, 40, 69, 70, 79, 80, 89, 90, 100} {
		for _, days := range []int{0, 35, 36, 60, 61, 90, 91} {
			for _, exact := range []bool{true, false} {
				scores := models.AttributeScores{
					NameScore:          nameScore,
					ExactMatch:         exact,
					DateDiffDays:       days,
					SizeMatch:          true,
					TypeMatch:          true,
					CategoryCompatible: true,
				}
				assert.NotEqual(t, models.ConfidenceReview, Calibrate(scores),
					"nameScore=%d days=%d exact=%v", nameScore, days, exact)
			}
		}
	}
}
