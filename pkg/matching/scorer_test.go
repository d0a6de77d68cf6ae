package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/knowledge"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testScorer(companies ...*models.Company) *Scorer {
	return NewScorer(aliasindex.Build(companies), knowledge.Default())
}

func TestScoreExactNormalizedName(t *testing.T) {
	s := testScorer()
	left := s.Prepare(&models.Deal{Name: "Acme Corp", AnnouncedAt: onDay(0), SizeMUSD: 100, Type: "Acquisition", Category: "Gaming"})
	right := s.Prepare(&models.Deal{Name: "ACME, Inc.", AnnouncedAt: onDay(10), SizeMUSD: 100, Type: "Merger", Category: "Gaming"})

	scores := s.Score(left, right)
	assert.True(t, scores.ExactMatch)
	assert.Equal(t, 100, scores.NameScore)
	assert.Equal(t, 10, scores.DateDiffDays)
	assert.True(t, scores.SizeMatch)
	assert.True(t, scores.TypeMatch)
	assert.True(t, scores.CategoryCompatible)
}

func TestScoreAliasResolution(t *testing.T) {
	s := testScorer(&models.Company{ID: "c-1", Name: "Meta Platforms", Aliases: []string{"Facebook"}})

	left := s.Prepare(&models.Deal{Name: "Facebook", AnnouncedAt: onDay(0)})
	right := s.Prepare(&models.Deal{Name: "Meta Platforms", AnnouncedAt: onDay(3)})

	scores := s.Score(left, right)
	assert.True(t, scores.ExactMatch)
	assert.Equal(t, 100, scores.NameScore)
}

func TestScoreRelatedPairPinnedScore(t *testing.T) {
	s := testScorer()
	left := s.Prepare(&models.Deal{Name: "Facebook", AnnouncedAt: onDay(0)})
	right := s.Prepare(&models.Deal{Name: "Meta", AnnouncedAt: onDay(3)})

	scores := s.Score(left, right)
	assert.False(t, scores.ExactMatch)
	assert.Equal(t, knowledge.DefaultRelatedScore, scores.NameScore)
}

func TestScoreShortKeysMatchExactOnly(t *testing.T) {
	s := testScorer()

	differ := s.Score(s.Prepare(&models.Deal{Name: "GO"}), s.Prepare(&models.Deal{Name: "GM"}))
	assert.Equal(t, 0, differ.NameScore)
	assert.False(t, differ.ExactMatch)

	same := s.Score(s.Prepare(&models.Deal{Name: "GO"}), s.Prepare(&models.Deal{Name: "go"}))
	assert.Equal(t, 100, same.NameScore)
	assert.True(t, same.ExactMatch)
}

func TestScoreSizeTolerance(t *testing.T) {
	s := testScorer()
	pair := func(leftSize, rightSize float64) models.AttributeScores {
		return s.Score(
			s.Prepare(&models.Deal{Name: "Acme", AnnouncedAt: onDay(0), SizeMUSD: leftSize}),
			s.Prepare(&models.Deal{Name: "Acme", AnnouncedAt: onDay(0), SizeMUSD: rightSize}),
		)
	}

	assert.True(t, pair(0, 500).SizeMatch, "undisclosed is compatible with anything")
	assert.True(t, pair(95, 100).SizeMatch, "within ten percent of the larger")
	assert.True(t, pair(3.2, 3.9).SizeMatch, "small deals inside the absolute floor")
	assert.False(t, pair(50, 100).SizeMatch)
}

func TestScoreTypeEquivalence(t *testing.T) {
	s := testScorer()
	pair := func(leftType, rightType string) models.AttributeScores {
		return s.Score(
			s.Prepare(&models.Deal{Name: "Acme", AnnouncedAt: onDay(0), Type: leftType}),
			s.Prepare(&models.Deal{Name: "Acme", AnnouncedAt: onDay(0), Type: rightType}),
		)
	}

	assert.True(t, pair("Buyout", "buyout").TypeMatch)
	assert.True(t, pair("Acquisition", "Merger").TypeMatch, "curated equivalence group")
	assert.True(t, pair("Series A", "Series A Extension").TypeMatch, "containment")
	assert.False(t, pair("IPO", "Series A").TypeMatch)
	assert.True(t, pair("", "").TypeMatch, "both missing compares equal")
	assert.False(t, pair("Buyout", "").TypeMatch, "one missing never corroborates")
}

func TestCategoriesCompatible(t *testing.T) {
	s := testScorer()
	left := s.Prepare(&models.Deal{Name: "Acme", Category: "Late-Stage"})

	assert.True(t, s.CategoriesCompatible(left, s.Prepare(&models.Deal{Name: "Acme", Category: "late stage"})))
	assert.True(t, s.CategoriesCompatible(left, s.Prepare(&models.Deal{Name: "Acme", Category: "Growth"})), "curated adjacency")
	assert.False(t, s.CategoriesCompatible(left, s.Prepare(&models.Deal{Name: "Acme", Category: "Gaming"})))
}

func TestSizesWithin(t *testing.T) {
	assert.True(t, SizesWithin(100, 100.3, 0.05, 0.5))
	assert.True(t, SizesWithin(100, 104, 0.05, 0.5))
	assert.False(t, SizesWithin(100, 106, 0.05, 0.5))
	assert.True(t, SizesWithin(0.2, 0.6, 0.05, 0.5), "absolute floor covers tiny sizes")
}

func TestDateDiffDays(t *testing.T) {
	assert.Equal(t, 0, DateDiffDays(onDay(3), onDay(3)))
	assert.Equal(t, 7, DateDiffDays(onDay(10), onDay(3)))
	assert.Equal(t, 7, DateDiffDays(onDay(3), onDay(10)))
}
