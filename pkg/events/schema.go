package events

import (
	"github.com/Ramsey-B/clover/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Outbound topics.
const (
	TopicRunsCompleted    = "clover.runs.completed"
	TopicRunsFailed       = "clover.runs.failed"
	TopicExceptionsRaised = "clover.exceptions.raised"
)

// Event types carried in the envelope.
const (
	EventTypeRunCompleted     = "run.completed"
	EventTypeRunFailed        = "run.failed"
	EventTypeExceptionsRaised = "exceptions.raised"
)

// RunEvent is the payload of run.completed and run.failed events.
type RunEvent struct {
	RunID            string          `json:"run_id"`
	TenantID         string          `json:"tenant_id"`
	Status           string          `json:"status"`
	InputFingerprint string          `json:"input_fingerprint"`
	Stats            models.RunStats `json:"stats"`
	Error            *string         `json:"error,omitempty"`
}

// ExceptionsEvent is the payload of exceptions.raised events. One event per
// run with the counts, not one per exception row.
type ExceptionsEvent struct {
	RunID    string         `json:"run_id"`
	TenantID string         `json:"tenant_id"`
	Total    int            `json:"total"`
	Kinds    map[string]int `json:"kinds"`
}
