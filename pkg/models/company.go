package models

import (
	"encoding/json"
	"time"
)

// CompanyStatus ranks how authoritative a company row is. Merge conflicts are
// resolved by precedence: enabled > imported > needs_enrichment >
// pending_creation.
type CompanyStatus string

const (
	// CompanyStatusEnabled rows exist in the reference store and are verified.
	CompanyStatusEnabled CompanyStatus = "enabled"
	// CompanyStatusImported rows exist in the reference store but came from a feed.
	CompanyStatusImported CompanyStatus = "imported"
	// CompanyStatusNeedsEnrichment rows exist but are missing descriptive fields.
	CompanyStatusNeedsEnrichment CompanyStatus = "needs_enrichment"
	// CompanyStatusPendingCreation rows must be created in the reference store.
	CompanyStatusPendingCreation CompanyStatus = "pending_creation"
)

// statusRank orders statuses for conflict precedence. Higher wins.
var statusRank = map[CompanyStatus]int{
	CompanyStatusEnabled:         4,
	CompanyStatusImported:        3,
	CompanyStatusNeedsEnrichment: 2,
	CompanyStatusPendingCreation: 1,
}

// Rank returns the precedence of the status. Unknown statuses rank lowest.
func (s CompanyStatus) Rank() int {
	return statusRank[s]
}

// CompanyRole is the part a company plays in a deal.
type CompanyRole string

const (
	CompanyRoleTarget   CompanyRole = "target"
	CompanyRoleAcquirer CompanyRole = "acquirer"
	CompanyRoleInvestor CompanyRole = "investor"
)

// CompanyRecord is one company row from either dataset, tied to the deal it
// participates in. Records are grouped by canonical identity during merging.
type CompanyRecord struct {
	ID        string          `json:"id" db:"id"`
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	Source    RecordSource    `json:"source" db:"source"`
	SourceKey string          `json:"source_key" db:"source_key"`
	Name      string          `json:"name" db:"name" validate:"required"`
	Status    CompanyStatus   `json:"status" db:"status"`
	Role      CompanyRole     `json:"role" db:"role"`
	DealID    string          `json:"deal_id" db:"deal_id"`
	Data      json.RawMessage `json:"data,omitempty" db:"data"`
	SyncID    string          `json:"sync_id,omitempty" db:"sync_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Company is a canonical identity from the curated reference table. Every
// known name variant of the company resolves to its ID through the alias
// index.
type Company struct {
	ID        string        `json:"id" db:"id"`
	TenantID  string        `json:"tenant_id" db:"tenant_id"`
	SourceKey string        `json:"source_key" db:"source_key"`
	Name      string        `json:"name" db:"name" validate:"required"`
	Status    CompanyStatus `json:"status" db:"status"`
	Aliases   []string      `json:"aliases" db:"-"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CompanyAlias is one stored name variant. Normalized and phonetic columns are
// computed at write time so index builds and fuzzy lookups stay cheap.
type CompanyAlias struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	CompanyID  string    `json:"company_id" db:"company_id"`
	Alias      string    `json:"alias" db:"alias"`
	Normalized string    `json:"normalized" db:"normalized"`
	Soundex    string    `json:"soundex" db:"soundex"`
	Metaphone  string    `json:"metaphone" db:"metaphone"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CompanyUpsert is the payload carried by clover.companies.upserted messages.
// It upserts a canonical company with its alias set.
type CompanyUpsert struct {
	SourceKey string        `json:"source_key" validate:"required"`
	Name      string        `json:"name" validate:"required"`
	Status    CompanyStatus `json:"status" validate:"omitempty,oneof=enabled imported needs_enrichment pending_creation"`
	Aliases   []string      `json:"aliases,omitempty"`
}
