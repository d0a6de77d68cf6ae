package matching

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/knowledge"
	"github.com/Ramsey-B/clover/pkg/models"
)

func onDay(offset int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func deal(key, name string, announced time.Time, size float64, dealType, category string) *models.Deal {
	return &models.Deal{
		SourceKey:   key,
		Name:        name,
		AnnouncedAt: announced,
		SizeMUSD:    size,
		Type:        dealType,
		Category:    category,
	}
}

func testEngine(companies ...*models.Company) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	scorer := NewScorer(aliasindex.Build(companies), knowledge.Default())
	return NewEngine(logger, scorer, DefaultConfig())
}

func TestRunExactMatchFullAgreement(t *testing.T) {
	engine := testEngine()

	out, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{deal("imp-1", "Acme Corp", onDay(0), 120, "Acquisition", "Gaming")},
		Curated:  []*models.Deal{deal("cur-1", "Acme Inc", onDay(10), 120, "Acquisition", "Gaming")},
	})
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)

	match := out.Matches[0]
	assert.Equal(t, models.ConfidenceExact, match.Confidence)
	assert.Equal(t, 1, match.Pass)
	assert.Equal(t, "imp-1", match.Left.SourceKey)
	assert.Equal(t, "cur-1", match.Right.SourceKey)
	assert.True(t, match.Scores.ExactMatch)
	assert.Empty(t, out.UnmatchedImported)
	assert.Empty(t, out.UnmatchedCurated)
	assert.Empty(t, out.Issues)
}

func TestRunNearExactNameStrongMatch(t *testing.T) {
	engine := testEngine()

	// A typo in the curated name, one side undisclosed, equivalent type
	// labels. Everything else corroborates.
	out, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{deal("imp-1", "Lightspeed Systems", onDay(0), 0, "Acquisition", "Edtech")},
		Curated:  []*models.Deal{deal("cur-1", "Lightspeed Sysfems", onDay(20), 50, "Merger", "Edtech")},
	})
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)

	match := out.Matches[0]
	assert.Equal(t, models.ConfidenceStrong, match.Confidence)
	assert.Equal(t, 1, match.Pass)
	assert.False(t, match.Scores.ExactMatch)
	assert.GreaterOrEqual(t, match.Scores.NameScore, 90)
	assert.True(t, match.Scores.SizeMatch)
	assert.True(t, match.Scores.TypeMatch)
}

func TestRunAnomalyBucket(t *testing.T) {
	engine := testEngine()

	// Same size, same type, five days apart, completely different names.
	// Too dissimilar for the main passes, which reject it outright.
	out, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{deal("imp-1", "Fenix Holdings", onDay(0), 100, "Buyout", "Gaming")},
		Curated:  []*models.Deal{deal("cur-1", "Quantum Partners", onDay(5), 100.3, "Buyout", "Gaming")},
	})
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)

	match := out.Matches[0]
	assert.Equal(t, models.ConfidenceReview, match.Confidence)
	assert.Equal(t, 3, match.Pass)
	assert.Less(t, match.Scores.NameScore, 60)
	assert.True(t, match.Scores.TypeMatch)
}

func TestRunAnomalyRequiresDisclosedSizes(t *testing.T) {
	engine := testEngine()

	out, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{deal("imp-1", "Fenix Holdings", onDay(0), 0, "Buyout", "Gaming")},
		Curated:  []*models.Deal{deal("cur-1", "Quantum Partners", onDay(5), 100.3, "Buyout", "Gaming")},
	})
	require.NoError(t, err)

	assert.Empty(t, out.Matches)
	require.Len(t, out.UnmatchedImported, 1)
	require.Len(t, out.UnmatchedCurated, 1)
}

func TestRunCrossCategoryExactName(t *testing.T) {
	engine := testEngine()

	// Miscategorized and outside the tight window, but the normalized names
	// are identical. The wide pass finds it; the name alone caps trust.
	out, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{deal("imp-1", "Globex Corporation", onDay(0), 200, "Acquisition", "Gaming")},
		Curated:  []*models.Deal{deal("cur-1", "Globex", onDay(70), 0, "Acquisition", "Fintech")},
	})
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)

	match := out.Matches[0]
	assert.Equal(t, 2, match.Pass)
	assert.Equal(t, models.ConfidenceModerate, match.Confidence)
	assert.True(t, match.Scores.ExactMatch)
}

func TestRunClaimsEachDealOnce(t *testing.T) {
	engine := testEngine()

	// Two imported deals compete for one curated deal; date proximity
	// decides, and the loser stays unmatched rather than double-claiming.
	out, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{
			deal("imp-1", "Acme Corp", onDay(0), 100, "Acquisition", "Gaming"),
			deal("imp-2", "Acme Inc", onDay(3), 100, "Acquisition", "Gaming"),
		},
		Curated: []*models.Deal{deal("cur-1", "Acme", onDay(1), 100, "Acquisition", "Gaming")},
	})
	require.NoError(t, err)

	require.Len(t, out.Matches, 1)
	assert.Equal(t, "imp-1", out.Matches[0].Left.SourceKey)
	require.Len(t, out.UnmatchedImported, 1)
	assert.Equal(t, "imp-2", out.UnmatchedImported[0].SourceKey)
	assert.Empty(t, out.UnmatchedCurated)
}

func TestRunOrderIndependent(t *testing.T) {
	imported := []*models.Deal{
		deal("imp-1", "Acme Corp", onDay(0), 100, "Acquisition", "Gaming"),
		deal("imp-2", "Acme Holdings", onDay(2), 100, "Acquisition", "Gaming"),
		deal("imp-3", "Bluebird Labs", onDay(5), 40, "Series A", "Early-Stage"),
	}
	curated := []*models.Deal{
		deal("cur-1", "Acme Inc", onDay(1), 100, "Acquisition", "Gaming"),
		deal("cur-2", "Bluebird Labs", onDay(6), 40, "Series A", "Early-Stage"),
	}
	engine := testEngine()

	forward, err := engine.Run(context.Background(), Input{Imported: imported, Curated: curated})
	require.NoError(t, err)
	require.Len(t, forward.Matches, 2)

	reversed, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{imported[2], imported[1], imported[0]},
		Curated:  []*models.Deal{curated[1], curated[0]},
	})
	require.NoError(t, err)

	assert.Equal(t, matchKeys(forward), matchKeys(reversed))
	assert.Equal(t, dealKeys(forward.UnmatchedImported), dealKeys(reversed.UnmatchedImported))
	assert.Equal(t, dealKeys(forward.UnmatchedCurated), dealKeys(reversed.UnmatchedCurated))
}

func TestRunDataQualityIssues(t *testing.T) {
	engine := testEngine()

	missingDate := &models.Deal{SourceKey: "imp-2", Name: "Acme", SizeMUSD: 10}
	blankName := deal("imp-3", "( ticker )", onDay(0), 5, "", "")
	negativeSize := deal("cur-2", "Globex", onDay(0), -4, "", "")

	out, err := engine.Run(context.Background(), Input{
		Imported: []*models.Deal{deal("imp-1", "Acme", onDay(0), 10, "Buyout", "Gaming"), missingDate, blankName},
		Curated:  []*models.Deal{deal("cur-1", "Acme", onDay(1), 10, "Buyout", "Gaming"), negativeSize},
	})
	require.NoError(t, err)

	require.Len(t, out.Issues, 3)
	reasons := make(map[string]string, len(out.Issues))
	for _, issue := range out.Issues {
		reasons[issue.Deal.SourceKey] = issue.Reason
	}
	assert.Contains(t, reasons["imp-2"], "announcement date")
	assert.Contains(t, reasons["imp-3"], "empty")
	assert.Contains(t, reasons["cur-2"], "negative")

	// Rejected deals never reach the passes or the unmatched lists.
	require.Len(t, out.Matches, 1)
	assert.Empty(t, out.UnmatchedImported)
	assert.Empty(t, out.UnmatchedCurated)
}

func TestRunBoundedConfidences(t *testing.T) {
	// Enough records to keep the whole worker pool busy.
	var imported, curated []*models.Deal
	for i := 0; i < 40; i++ {
		letter := rune('A' + i%26)
		imported = append(imported, deal(
			fmt.Sprintf("imp-%02d", i),
			fmt.Sprintf("Vendor %c Studios", letter),
			onDay(i*3), float64(10+i), "Acquisition", "Gaming",
		))
		curated = append(curated, deal(
			fmt.Sprintf("cur-%02d", i),
			fmt.Sprintf("Vendor %c", letter),
			onDay(i*3+2), float64(10+i), "Acquisition", "Gaming",
		))
	}

	engine := testEngine()
	out, err := engine.Run(context.Background(), Input{Imported: imported, Curated: curated})
	require.NoError(t, err)
	require.NotEmpty(t, out.Matches)

	claimed := make(map[*models.Deal]bool)
	for _, match := range out.Matches {
		assert.True(t, match.Confidence.Valid())
		assert.NotEqual(t, models.ConfidenceNone, match.Confidence)
		assert.Contains(t, []int{1, 2, 3}, match.Pass)
		assert.False(t, claimed[match.Left], "imported deal %s claimed twice", match.Left.SourceKey)
		assert.False(t, claimed[match.Right], "curated deal %s claimed twice", match.Right.SourceKey)
		claimed[match.Left] = true
		claimed[match.Right] = true
	}
}

func TestRunCancelledContext(t *testing.T) {
	engine := testEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, Input{
		Imported: []*models.Deal{deal("imp-1", "Acme", onDay(0), 10, "Buyout", "Gaming")},
		Curated:  []*models.Deal{deal("cur-1", "Acme", onDay(1), 10, "Buyout", "Gaming")},
	})
	assert.Error(t, err)
}

func matchKeys(out *Output) []string {
	keys := make([]string, 0, len(out.Matches))
	for _, match := range out.Matches {
		keys = append(keys, fmt.Sprintf("%s:%s:%d:pass%d",
			match.Left.SourceKey, match.Right.SourceKey, match.Confidence, match.Pass))
	}
	sort.Strings(keys)
	return keys
}

func dealKeys(deals []*models.Deal) []string {
	keys := make([]string, 0, len(deals))
	for _, d := range deals {
		keys = append(keys, d.SourceKey)
	}
	return keys
}
