package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/lib/pq"
)

// MergeStrategyType defines how to merge a field when consolidating company
// records into one card.
type MergeStrategyType string

const (
	// MergeStrategyPreferNonEmpty uses the first non-empty value in stable record order.
	MergeStrategyPreferNonEmpty MergeStrategyType = "prefer_non_empty"
	// MergeStrategyCollectAll combines all values into a de-duplicated array.
	MergeStrategyCollectAll MergeStrategyType = "collect_all"
	// MergeStrategySourcePriority uses the value from the highest-status record.
	MergeStrategySourcePriority MergeStrategyType = "source_priority"
	// MergeStrategyMostRecent uses the most recently updated value.
	MergeStrategyMostRecent MergeStrategyType = "most_recent"
	// MergeStrategyLongestValue uses the longest string value.
	MergeStrategyLongestValue MergeStrategyType = "longest"
	// MergeStrategyFirstValue uses the first encountered value.
	MergeStrategyFirstValue MergeStrategyType = "first"
)

// FieldMergeStrategy overrides the merge strategy for one descriptive field.
type FieldMergeStrategy struct {
	Field    string            `json:"field"`
	Strategy MergeStrategyType `json:"strategy"`
	Dedup    bool              `json:"dedup,omitempty"` // For collect_all
}

// MergedCompany is one consolidated company card produced by a run. Deal
// foreign keys and roles from every contributing record are concatenated in
// stable order and de-duplicated, never overwritten.
type MergedCompany struct {
	ID          string                          `json:"id" db:"id"`
	TenantID    string                          `json:"tenant_id" db:"tenant_id"`
	RunID       string                          `json:"run_id" db:"run_id"`
	CompanyID   *string                         `json:"company_id,omitempty" db:"company_id"` // nil until the company exists in the reference store
	Name        string                          `json:"name" db:"name"`
	Status      CompanyStatus                   `json:"status" db:"status"`
	Aliases     pq.StringArray                  `json:"aliases" db:"aliases"`
	DealIDs     pq.StringArray                  `json:"deal_ids" db:"deal_ids"`
	Roles       pq.StringArray                  `json:"roles" db:"roles"`
	Data        database.JSONB[map[string]any]  `json:"data" db:"data"`
	Conflicts   database.JSONB[[]MergeConflict] `json:"conflicts" db:"conflicts"`
	SourceCount int                             `json:"source_count" db:"source_count"`
	Fingerprint string                          `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time                       `json:"created_at" db:"created_at"`
}

// MergeConflict records one field where contributing records disagreed and
// which value won.
type MergeConflict struct {
	Field         string   `json:"field"`
	Values        []any    `json:"values"`
	Records       []string `json:"records"`
	Resolution    string   `json:"resolution"`
	ResolvedValue any      `json:"resolved_value"`
}

// MergedCompanyListResponse is the API response for listing merged companies.
type MergedCompanyListResponse struct {
	Items      []MergedCompany `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}
