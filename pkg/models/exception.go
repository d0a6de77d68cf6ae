package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// ExceptionKind classifies an item on the human-review list. Exceptions are
// reported, never auto-resolved.
type ExceptionKind string

const (
	// ExceptionAliasCollision: one normalized alias maps to two canonical ids.
	ExceptionAliasCollision ExceptionKind = "alias_collision"
	// ExceptionAmbiguousAlias: a record name resolved to multiple canonical ids.
	ExceptionAmbiguousAlias ExceptionKind = "ambiguous_alias"
	// ExceptionRoleConflict: one canonical id is both target and counterparty
	// inside a single deal.
	ExceptionRoleConflict ExceptionKind = "role_conflict"
	// ExceptionDataQuality: malformed date/size or a parsing artifact in a name.
	ExceptionDataQuality ExceptionKind = "data_quality"
	// ExceptionUnmatchedDeal: an imported deal left unclaimed after all passes.
	ExceptionUnmatchedDeal ExceptionKind = "unmatched_deal"
	// ExceptionMergeConflict: a merge group excluded from auto-merge.
	ExceptionMergeConflict ExceptionKind = "merge_conflict"
	// ExceptionOrphanedDealRef: a merged card references a deal that was never loaded.
	ExceptionOrphanedDealRef ExceptionKind = "orphaned_deal_ref"
	// ExceptionMissingTarget: a deal whose merged roles contain no target.
	ExceptionMissingTarget ExceptionKind = "missing_target"
	// ExceptionMultipleTargets: a deal whose merged roles contain several targets.
	ExceptionMultipleTargets ExceptionKind = "multiple_targets"
	// ExceptionDuplicateMergedName: two merged cards share a normalized name.
	ExceptionDuplicateMergedName ExceptionKind = "duplicate_merged_name"
)

// Exception is one row of the human-review list produced by a run.
type Exception struct {
	ID        string                         `json:"id" db:"id"`
	TenantID  string                         `json:"tenant_id" db:"tenant_id"`
	RunID     string                         `json:"run_id" db:"run_id"`
	Kind      ExceptionKind                  `json:"kind" db:"kind"`
	Message   string                         `json:"message" db:"message"`
	RecordID  *string                        `json:"record_id,omitempty" db:"record_id"`
	Details   database.JSONB[map[string]any] `json:"details" db:"details"`
	CreatedAt time.Time                      `json:"created_at" db:"created_at"`
}

// ExceptionListResponse is the API response for listing a run's exceptions.
type ExceptionListResponse struct {
	Items      []Exception `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}
