package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried in the envelope's type field.
const (
	TypeDealUpserted     = "deal.upserted"
	TypeCompanyUpserted  = "company.upserted"
	TypeDatasetCompleted = "dataset.completed"
	TypeRunRequested     = "run.requested"
)

// Envelope is the wire format shared by every consumed topic. The payload is
// decoded by the handler once the type is known.
type Envelope struct {
	Type          string          `json:"type"`
	SchemaVersion string          `json:"schema_version,omitempty"`
	TenantID      string          `json:"tenant_id"`
	SyncID        string          `json:"sync_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	Envelope *Envelope
}

// ParseEnvelope parses the message value as a clover envelope.
func (m *IncomingMessage) ParseEnvelope() error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.Type == "" {
		return fmt.Errorf("envelope has no type")
	}
	m.Envelope = &env
	return nil
}

// GetTenantID returns the tenant the message is scoped to, falling back to
// the tenant_id header for producers that only set headers.
func (m *IncomingMessage) GetTenantID() string {
	if m.Envelope != nil && m.Envelope.TenantID != "" {
		return m.Envelope.TenantID
	}
	return m.Headers["tenant_id"]
}

// GetType returns the envelope type, falling back to the event_type header.
func (m *IncomingMessage) GetType() string {
	if m.Envelope != nil && m.Envelope.Type != "" {
		return m.Envelope.Type
	}
	return m.Headers["event_type"]
}

// GetSyncID returns the snapshot id the message belongs to.
func (m *IncomingMessage) GetSyncID() string {
	if m.Envelope != nil {
		return m.Envelope.SyncID
	}
	return ""
}

// DecodePayload unmarshals the envelope payload into out.
func (m *IncomingMessage) DecodePayload(out any) error {
	if m.Envelope == nil {
		return fmt.Errorf("message has no parsed envelope")
	}
	if len(m.Envelope.Payload) == 0 {
		return fmt.Errorf("envelope has no payload")
	}
	return json.Unmarshal(m.Envelope.Payload, out)
}

// DatasetCompleted is the payload of dataset.completed messages. It marks a
// snapshot boundary: rows of the source not carrying the sync id are stale.
type DatasetCompleted struct {
	Source string `json:"source"`
	SyncID string `json:"sync_id"`
	Status string `json:"status"` // success, partial, failed
	Rows   int    `json:"rows,omitempty"`
}

// Succeeded reports whether the snapshot finished well enough to retire
// stale rows. A partial or failed snapshot must never soft-delete anything.
func (d *DatasetCompleted) Succeeded() bool {
	return d.Status == "" || d.Status == "success"
}

// RunRequested is the payload of run.requested messages.
type RunRequested struct {
	Force bool `json:"force"`
}
