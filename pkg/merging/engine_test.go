package merging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func crec(id, name string, status models.CompanyStatus, role models.CompanyRole, dealID string) *models.CompanyRecord {
	return &models.CompanyRecord{
		ID:        id,
		SourceKey: "src-" + id,
		Name:      name,
		Status:    status,
		Role:      role,
		DealID:    dealID,
	}
}

func withData(record *models.CompanyRecord, data map[string]any) *models.CompanyRecord {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	record.Data = raw
	return record
}

func testMergeEngine(companies ...*models.Company) *Engine {
	return NewEngine(noopLogger(), aliasindex.Build(companies), nil)
}

func cardByName(t *testing.T, out *Output, name string) *models.MergedCompany {
	t.Helper()
	for _, card := range out.Merged {
		if card.Name == name {
			return card
		}
	}
	t.Fatalf("no merged company named %q", name)
	return nil
}

func issueKinds(out *Output) []models.ExceptionKind {
	kinds := make([]models.ExceptionKind, len(out.Issues))
	for i, issue := range out.Issues {
		kinds[i] = issue.Kind
	}
	return kinds
}

func TestMergeStatusPrecedence(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		TenantID: "t1",
		RunID:    "run1",
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Acme Inc", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-2"),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)

	card := out.Merged[0]
	assert.Equal(t, "Acme Inc", card.Name)
	assert.Equal(t, models.CompanyStatusEnabled, card.Status)
	assert.Equal(t, 2, card.SourceCount)
	assert.ElementsMatch(t, pq.StringArray{"Acme Inc", "Acme Corp"}, card.Aliases)
	assert.Equal(t, "t1", card.TenantID)
	assert.Equal(t, "run1", card.RunID)
	assert.NotEmpty(t, card.Fingerprint)
}

func TestMergeDealConcatIncludesMatchedCounterparts(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			crec("r1", "Globex", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-cur"),
			crec("r2", "Globex Corporation", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-imp"),
		},
		DealPairs: map[string]string{
			"deal-cur": "deal-imp",
			"deal-imp": "deal-cur",
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)

	// Both sides of the matched pair, in precedence order, no duplicates.
	assert.Equal(t, pq.StringArray{"deal-cur", "deal-imp"}, out.Merged[0].DealIDs)
}

func TestMergeRolesFixedOrder(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			crec("r1", "Sequoia Capital", models.CompanyStatusImported, models.CompanyRoleInvestor, "deal-1"),
			crec("r2", "Sequoia Capital", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)
	assert.Equal(t, pq.StringArray{"target", "investor"}, out.Merged[0].Roles)
}

func TestMergeRoleConflictWithinDealExcludesGroup(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Acme Inc", models.CompanyStatusImported, models.CompanyRoleAcquirer, "deal-1"),
			crec("r3", "Initech", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
		},
	})
	require.NoError(t, err)

	// The contradictory group is excluded; the clean group still merges.
	require.Len(t, out.Merged, 1)
	assert.Equal(t, "Initech", out.Merged[0].Name)

	require.Len(t, out.Issues, 1)
	issue := out.Issues[0]
	assert.Equal(t, models.ExceptionRoleConflict, issue.Kind)
	assert.Equal(t, "deal-1", issue.Details["deal_id"])
	assert.Contains(t, issue.Message, "Acme")
}

func TestMergeDualRoleAcrossDealsIsAllowed(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			crec("r1", "Vertex Labs", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Vertex Labs", models.CompanyStatusImported, models.CompanyRoleAcquirer, "deal-2"),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)
	assert.Empty(t, out.Issues)
	assert.Equal(t, pq.StringArray{"target", "acquirer"}, out.Merged[0].Roles)
	assert.Equal(t, pq.StringArray{"deal-1", "deal-2"}, out.Merged[0].DealIDs)
}

func TestMergeAmbiguousAliasExcluded(t *testing.T) {
	index := aliasindex.Build([]*models.Company{
		{ID: "c1", Name: "Phoenix Software"},
		{ID: "c2", Name: "Phoenix Biotech", Aliases: []string{"Phoenix Software"}},
	})
	engine := NewEngine(noopLogger(), index, nil)

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			crec("r1", "Phoenix Software", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
		},
	})
	require.NoError(t, err)

	assert.Empty(t, out.Merged)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, models.ExceptionAmbiguousAlias, out.Issues[0].Kind)
	assert.Equal(t, "r1", out.Issues[0].RecordID)
}

func TestMergeCanonicalGroupingViaIndex(t *testing.T) {
	index := aliasindex.Build([]*models.Company{
		{ID: "c-meta", Name: "Meta Platforms", Aliases: []string{"Facebook"}},
	})
	engine := NewEngine(noopLogger(), index, nil)

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			crec("r1", "Facebook", models.CompanyStatusImported, models.CompanyRoleAcquirer, "deal-1"),
			crec("r2", "Meta Platforms", models.CompanyStatusEnabled, models.CompanyRoleAcquirer, "deal-2"),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)

	card := out.Merged[0]
	require.NotNil(t, card.CompanyID)
	assert.Equal(t, "c-meta", *card.CompanyID)
	assert.Equal(t, "Meta Platforms", card.Name)
	assert.ElementsMatch(t, pq.StringArray{"Meta Platforms", "Facebook"}, card.Aliases)
}

func TestMergeDataConflictRecorded(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			withData(crec("r1", "Acme Corp", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-1"),
				map[string]any{"hq": "Dublin", "sector": "fintech"}),
			withData(crec("r2", "Acme Inc", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
				map[string]any{"hq": "Austin"}),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)

	card := out.Merged[0]
	assert.Equal(t, "Dublin", card.Data.Data["hq"])
	assert.Equal(t, "fintech", card.Data.Data["sector"])

	conflicts := card.Conflicts.Data
	require.Len(t, conflicts, 1)
	assert.Equal(t, "hq", conflicts[0].Field)
	assert.ElementsMatch(t, []string{"r1", "r2"}, conflicts[0].Records)

	assert.Contains(t, issueKinds(out), models.ExceptionMergeConflict)
}

func TestMergeListFieldsCollectByDefault(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			withData(crec("r1", "Acme Corp", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-1"),
				map[string]any{"investors": []any{"Sequoia"}}),
			withData(crec("r2", "Acme Inc", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
				map[string]any{"investors": []any{"Sequoia", "a16z"}}),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)

	assert.Equal(t, []any{"Sequoia", "a16z"}, out.Merged[0].Data.Data["investors"])
}

func TestMergeStrategyOverride(t *testing.T) {
	engine := NewEngine(noopLogger(), aliasindex.Build(nil), []models.FieldMergeStrategy{
		{Field: "hq", Strategy: models.MergeStrategyMostRecent},
	})

	r1 := withData(crec("r1", "Acme Corp", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-1"),
		map[string]any{"hq": "Dublin"})
	r2 := withData(crec("r2", "Acme Inc", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
		map[string]any{"hq": "Austin"})
	r2.UpdatedAt = r1.UpdatedAt.Add(1)

	out, err := engine.Merge(context.Background(), Input{Records: []*models.CompanyRecord{r1, r2}})
	require.NoError(t, err)
	require.Len(t, out.Merged, 1)
	assert.Equal(t, "Austin", out.Merged[0].Data.Data["hq"])
}

func TestMergeEmptyNameFlagged(t *testing.T) {
	engine := testMergeEngine()

	out, err := engine.Merge(context.Background(), Input{
		Records: []*models.CompanyRecord{
			crec("r1", "( ACME )", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Initech", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
		},
	})
	require.NoError(t, err)

	require.Len(t, out.Merged, 1)
	assert.Equal(t, "Initech", out.Merged[0].Name)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, models.ExceptionDataQuality, out.Issues[0].Kind)
}

func TestMergeDeterministicOrder(t *testing.T) {
	records := []*models.CompanyRecord{
		crec("r1", "Zenith Partners", models.CompanyStatusImported, models.CompanyRoleInvestor, "deal-1"),
		crec("r2", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
		crec("r3", "Mondo Media", models.CompanyStatusImported, models.CompanyRoleAcquirer, "deal-2"),
	}
	reversed := []*models.CompanyRecord{records[2], records[1], records[0]}

	engine := testMergeEngine()
	forward, err := engine.Merge(context.Background(), Input{Records: records})
	require.NoError(t, err)
	backward, err := engine.Merge(context.Background(), Input{Records: reversed})
	require.NoError(t, err)

	names := func(out *Output) []string {
		result := make([]string, len(out.Merged))
		for i, card := range out.Merged {
			result[i] = card.Name
		}
		return result
	}
	assert.Equal(t, names(forward), names(backward))
	assert.Equal(t, forward.Merged[0].Fingerprint, backward.Merged[0].Fingerprint)
}

func TestMergeCancelledContext(t *testing.T) {
	engine := testMergeEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Merge(ctx, Input{
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
		},
	})
	assert.Error(t, err)
}
