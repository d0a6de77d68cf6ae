package merging

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testVerifier(companies ...*models.Company) *Verifier {
	return NewVerifier(noopLogger(), aliasindex.Build(companies))
}

func card(id, name string, dealIDs ...string) *models.MergedCompany {
	return &models.MergedCompany{ID: id, Name: name, DealIDs: pq.StringArray(dealIDs)}
}

func namedDeal(id, name string) *models.Deal {
	return &models.Deal{ID: id, Name: name}
}

func kindsOf(issues []Issue) []models.ExceptionKind {
	kinds := make([]models.ExceptionKind, len(issues))
	for i, issue := range issues {
		kinds[i] = issue.Kind
	}
	return kinds
}

func TestVerifyCleanRun(t *testing.T) {
	v := testVerifier()

	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{card("m1", "Acme Corp", "deal-1")},
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
		},
		Deals: []*models.Deal{namedDeal("deal-1", "Acme buyout")},
	})

	assert.Empty(t, issues)
}

func TestVerifyOrphanedDealRef(t *testing.T) {
	v := testVerifier()

	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{card("m1", "Acme Corp", "deal-1", "deal-ghost")},
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
		},
		Deals: []*models.Deal{namedDeal("deal-1", "Acme buyout")},
	})

	require.Len(t, issues, 1)
	assert.Equal(t, models.ExceptionOrphanedDealRef, issues[0].Kind)
	assert.Equal(t, "deal-ghost", issues[0].Details["deal_id"])
	assert.Equal(t, "m1", issues[0].RecordID)
}

func TestVerifyMissingTarget(t *testing.T) {
	v := testVerifier()

	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{card("m1", "Sequoia Capital", "deal-1")},
		Records: []*models.CompanyRecord{
			crec("r1", "Sequoia Capital", models.CompanyStatusImported, models.CompanyRoleInvestor, "deal-1"),
		},
		Deals: []*models.Deal{namedDeal("deal-1", "Series B round")},
	})

	require.Len(t, issues, 1)
	assert.Equal(t, models.ExceptionMissingTarget, issues[0].Kind)
	assert.Equal(t, "deal-1", issues[0].Details["deal_id"])
}

func TestVerifyMatchedPairCoversBothDeals(t *testing.T) {
	v := testVerifier()

	// The target record belongs to the imported deal. Its matched curated
	// counterpart has no target record of its own but is still covered.
	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{card("m1", "Acme Corp", "deal-imp", "deal-cur")},
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-imp"),
		},
		Deals: []*models.Deal{
			namedDeal("deal-imp", "Acme buyout (imported)"),
			namedDeal("deal-cur", "Acme buyout (curated)"),
		},
		DealPairs: map[string]string{"deal-imp": "deal-cur", "deal-cur": "deal-imp"},
	})

	assert.Empty(t, issues)
}

func TestVerifyMultipleTargets(t *testing.T) {
	v := testVerifier()

	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{
			card("m1", "Acme Corp", "deal-1"),
			card("m2", "Initech", "deal-1"),
		},
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Initech", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
		},
		Deals: []*models.Deal{namedDeal("deal-1", "Mystery buyout")},
	})

	require.Len(t, issues, 1)
	assert.Equal(t, models.ExceptionMultipleTargets, issues[0].Kind)
	assert.Equal(t, "deal-1", issues[0].Details["deal_id"])
	assert.Len(t, issues[0].Details["identities"], 2)
}

func TestVerifyAliasedTargetsCountOnce(t *testing.T) {
	v := testVerifier(&models.Company{ID: "c-meta", Name: "Meta Platforms", Aliases: []string{"Facebook"}})

	// Two spellings of the same canonical company are one target identity.
	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{card("m1", "Meta Platforms", "deal-1")},
		Records: []*models.CompanyRecord{
			crec("r1", "Facebook", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Meta Platforms", models.CompanyStatusEnabled, models.CompanyRoleTarget, "deal-1"),
		},
		Deals: []*models.Deal{namedDeal("deal-1", "Meta take-private")},
	})

	assert.Empty(t, issues)
}

func TestVerifyDuplicateMergedName(t *testing.T) {
	v := testVerifier()

	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{
			card("m1", "Acme Corp", "deal-1"),
			card("m2", "Acme Inc", "deal-2"),
		},
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Acme Inc", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
		},
		Deals: []*models.Deal{
			namedDeal("deal-1", "Acme round A"),
			namedDeal("deal-2", "Acme round B"),
		},
	})

	require.Contains(t, kindsOf(issues), models.ExceptionDuplicateMergedName)
	for _, issue := range issues {
		if issue.Kind == models.ExceptionDuplicateMergedName {
			assert.Equal(t, "acme", issue.Details["key"])
			assert.ElementsMatch(t, []string{"Acme Corp", "Acme Inc"}, issue.Details["names"])
		}
	}
}

func TestVerifyNameArtifacts(t *testing.T) {
	v := testVerifier()

	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{
			card("m1", "Acme Corp (", "deal-1"),
			card("m2", ", Initech", "deal-2"),
			card("m3", "Globex  Corporation", "deal-3"),
		},
		Records: []*models.CompanyRecord{
			crec("r1", "Acme Corp", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-1"),
			crec("r2", "Initech", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-2"),
			crec("r3", "Globex Corporation", models.CompanyStatusImported, models.CompanyRoleTarget, "deal-3"),
		},
		Deals: []*models.Deal{
			namedDeal("deal-1", "Acme buyout"),
			namedDeal("deal-2", "Initech merger"),
			namedDeal("deal-3", "Globex spin-off"),
		},
	})

	kinds := kindsOf(issues)
	count := 0
	for _, kind := range kinds {
		if kind == models.ExceptionDataQuality {
			count++
		}
	}
	assert.Equal(t, 3, count, "every artifact-ridden name is flagged")
}

func TestVerifyCardWithoutDeals(t *testing.T) {
	v := testVerifier()

	issues := v.Verify(context.Background(), VerifyInput{
		Merged: []*models.MergedCompany{card("m1", "Acme Corp")},
	})

	require.Len(t, issues, 1)
	assert.Equal(t, models.ExceptionDataQuality, issues[0].Kind)
	assert.Contains(t, issues[0].Message, "no deals")
}
