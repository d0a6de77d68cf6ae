package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// RunStatus is the lifecycle state of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunStats summarizes one run for reporting and metrics.
type RunStats struct {
	ImportedDeals     int            `json:"imported_deals"`
	CuratedDeals      int            `json:"curated_deals"`
	CompanyRecords    int            `json:"company_records"`
	IndexAliases      int            `json:"index_aliases"`
	IndexCollisions   int            `json:"index_collisions"`
	Pass1Matches      int            `json:"pass1_matches"`
	Pass2Matches      int            `json:"pass2_matches"`
	Pass3Matches      int            `json:"pass3_matches"`
	ByConfidence      map[string]int `json:"by_confidence,omitempty"`
	UnmatchedImported int            `json:"unmatched_imported"`
	UnmatchedCurated  int            `json:"unmatched_curated"`
	MergedCompanies   int            `json:"merged_companies"`
	MergeConflicts    int            `json:"merge_conflicts"`
	Exceptions        int            `json:"exceptions"`
	MatchDurationMS   int64          `json:"match_duration_ms"`
	MergeDurationMS   int64          `json:"merge_duration_ms"`
	DurationMS        int64          `json:"duration_ms"`
}

// Matches totals the claims across all passes.
func (s RunStats) Matches() int {
	return s.Pass1Matches + s.Pass2Matches + s.Pass3Matches
}

// ReconcileRun is one execution of the full reconcile flow for a tenant. The
// input fingerprint makes runs idempotent: identical inputs short-circuit to
// the previous completed run instead of recomputing.
type ReconcileRun struct {
	ID               string                   `json:"id" db:"id"`
	TenantID         string                   `json:"tenant_id" db:"tenant_id"`
	Status           RunStatus                `json:"status" db:"status"`
	InputFingerprint string                   `json:"input_fingerprint" db:"input_fingerprint"`
	Stats            database.JSONB[RunStats] `json:"stats" db:"stats"`
	Error            *string                  `json:"error,omitempty" db:"error"`
	StartedAt        time.Time                `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time               `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at" db:"updated_at"`
}

// TriggerRunRequest is the request body for POST /api/v1/runs.
type TriggerRunRequest struct {
	// Force bypasses the input fingerprint short-circuit.
	Force bool `json:"force"`
}

// RunListResponse is the API response for listing runs.
type RunListResponse struct {
	Items      []ReconcileRun `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
