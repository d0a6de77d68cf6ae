package matchresult

import (
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"
)

func buildList(pass, minConfidence int) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("match_results")
	sb.Where(filters(sb, "tenant-1", "run-1", pass, minConfidence)...)
	return sb.Build()
}

func TestFiltersAlwaysScopeTenantAndRun(t *testing.T) {
	query, args := buildList(0, 0)

	assert.Contains(t, query, "tenant_id =")
	assert.Contains(t, query, "run_id =")
	assert.NotContains(t, query, "pass =")
	assert.NotContains(t, query, "confidence >=")
	assert.ElementsMatch(t, []any{"tenant-1", "run-1"}, args)
}

func TestFiltersNarrowByPass(t *testing.T) {
	query, args := buildList(3, 0)

	assert.Contains(t, query, "pass =")
	assert.Contains(t, args, 3)
}

func TestFiltersNarrowByMinConfidence(t *testing.T) {
	query, args := buildList(0, 75)

	assert.Contains(t, query, "confidence >=")
	assert.Contains(t, args, 75)
}
