package models

import "time"

// Confidence is one of the fixed discrete trust levels a match can carry.
// No intermediate values are ever produced.
type Confidence int

const (
	// ConfidenceNone marks a scored pair that failed calibration.
	ConfidenceNone Confidence = 0
	// ConfidenceReview marks the anomaly bucket: probably the same event under
	// the wrong company label. Requires human review.
	ConfidenceReview Confidence = 40
	// ConfidenceWeak marks plausible matches with thin corroboration.
	ConfidenceWeak Confidence = 50
	// ConfidenceModerate marks corroborated fuzzy-name matches.
	ConfidenceModerate Confidence = 75
	// ConfidenceStrong marks exact or near-exact names with agreeing attributes.
	ConfidenceStrong Confidence = 90
	// ConfidenceExact marks full agreement on every attribute.
	ConfidenceExact Confidence = 100
)

// ConfidenceLevels lists every value a match may carry, ascending.
var ConfidenceLevels = []Confidence{
	ConfidenceNone,
	ConfidenceReview,
	ConfidenceWeak,
	ConfidenceModerate,
	ConfidenceStrong,
	ConfidenceExact,
}

// Valid reports whether c is drawn from the fixed set.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceNone, ConfidenceReview, ConfidenceWeak, ConfidenceModerate, ConfidenceStrong, ConfidenceExact:
		return true
	}
	return false
}

// AttributeScores holds the per-attribute outcome of scoring one
// imported/curated deal pair. The calibrator maps it to a Confidence.
type AttributeScores struct {
	NameScore          int  `json:"name_score" db:"name_score"`
	ExactMatch         bool `json:"exact_match" db:"exact_match"`
	DateDiffDays       int  `json:"date_diff_days" db:"date_diff_days"`
	SizeMatch          bool `json:"size_match" db:"size_match"`
	TypeMatch          bool `json:"type_match" db:"type_match"`
	CategoryCompatible bool `json:"category_compatible" db:"category_compatible"`
}

// MatchCandidate pairs one imported deal with one curated deal during a run.
// Candidates exist only in memory; claimed candidates become MatchResults.
type MatchCandidate struct {
	Left       *Deal
	Right      *Deal
	Scores     AttributeScores
	Confidence Confidence
	Pass       int
}

// MatchResult is one persisted row of the scored match table.
type MatchResult struct {
	ID             string `json:"id" db:"id"`
	TenantID       string `json:"tenant_id" db:"tenant_id"`
	RunID          string `json:"run_id" db:"run_id"`
	ImportedDealID string `json:"imported_deal_id" db:"imported_deal_id"`
	CuratedDealID  string `json:"curated_deal_id" db:"curated_deal_id"`
	AttributeScores
	Confidence Confidence `json:"confidence" db:"confidence"`
	Pass       int        `json:"pass" db:"pass"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// MatchResultListResponse is the API response for listing a run's matches.
type MatchResultListResponse struct {
	Items      []MatchResult `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
