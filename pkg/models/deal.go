package models

import (
	"encoding/json"
	"time"
)

// RecordSource identifies which dataset a row arrived from.
type RecordSource string

const (
	// RecordSourceImported rows come from the integration feed.
	RecordSourceImported RecordSource = "imported"
	// RecordSourceCurated rows come from the reference desk.
	RecordSourceCurated RecordSource = "curated"
)

// Deal is one transaction row from either dataset. Rows are immutable once
// loaded; a reconciliation run only reads them.
type Deal struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	Source      RecordSource    `json:"source" db:"source"`
	SourceKey   string          `json:"source_key" db:"source_key" validate:"required"`
	Name        string          `json:"name" db:"name" validate:"required"`
	AnnouncedAt time.Time       `json:"announced_at" db:"announced_at"`
	SizeMUSD    float64         `json:"size_musd" db:"size_musd"` // 0 = undisclosed
	Type        string          `json:"type" db:"type"`
	Category    string          `json:"category" db:"category"`
	Data        json.RawMessage `json:"data,omitempty" db:"data"`
	Fingerprint string          `json:"fingerprint,omitempty" db:"fingerprint"`
	SyncID      string          `json:"sync_id,omitempty" db:"sync_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Disclosed reports whether the deal size was published by the source.
func (d *Deal) Disclosed() bool {
	return d.SizeMUSD > 0
}

// DealUpsert is the payload carried by clover.deals.upserted messages.
type DealUpsert struct {
	Source      RecordSource    `json:"source" validate:"required,oneof=imported curated"`
	SourceKey   string          `json:"source_key" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	AnnouncedAt time.Time       `json:"announced_at"`
	SizeMUSD    float64         `json:"size_musd"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Parties     []PartyUpsert   `json:"parties,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	SyncID      string          `json:"sync_id,omitempty"`
}

// PartyUpsert is one related-party row nested in a deal upsert. Each party
// becomes a CompanyRecord keyed to the deal.
type PartyUpsert struct {
	SourceKey string          `json:"source_key"`
	Name      string          `json:"name" validate:"required"`
	Role      CompanyRole     `json:"role" validate:"required,oneof=target acquirer investor"`
	Status    CompanyStatus   `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
}
