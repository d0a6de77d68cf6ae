// Package matching implements the deal matching engine: multi-attribute
// similarity scoring, discrete confidence calibration and the three-pass
// orchestration that links imported deals to curated ones.
package matching

import (
	"math"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/knowledge"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Size tolerances for the general passes. Two disclosed sizes agree when
// they are within 10% of the larger or within $1M, whichever is looser.
const (
	sizeRelTolerance = 0.10
	sizeAbsTolerance = 1.0 // $M
)

// Record is a deal plus its precomputed comparison keys. Preparing once per
// record keeps the per-pair scoring loop free of repeated normalization.
type Record struct {
	Deal        *models.Deal
	NameKey     string
	TypeKey     string
	CategoryKey string
	CanonicalID string
	Resolved    bool
}

// Scorer computes multi-attribute similarity between one imported and one
// curated deal. It reads only the two records, the alias index and the
// injected curated tables; it never mutates shared state, which is what makes
// the per-record scoring loop safe to parallelize.
type Scorer struct {
	index *aliasindex.Index
	kb    *knowledge.Base
}

// NewScorer builds a scorer over the run's alias index and knowledge base.
func NewScorer(index *aliasindex.Index, kb *knowledge.Base) *Scorer {
	return &Scorer{
		index: index,
		kb:    kb,
	}
}

// Prepare computes a deal's comparison keys and its alias-index resolution.
func (s *Scorer) Prepare(deal *models.Deal) *Record {
	record := &Record{
		Deal:        deal,
		NameKey:     normalizers.CompanyName(deal.Name),
		TypeKey:     normalizers.Label(deal.Type),
		CategoryKey: normalizers.Label(deal.Category),
	}
	record.CanonicalID, record.Resolved = s.index.Resolve(record.NameKey)
	return record
}

// Score computes the per-attribute outcome for one candidate pair.
func (s *Scorer) Score(left, right *Record) models.AttributeScores {
	scores := models.AttributeScores{
		DateDiffDays:       DateDiffDays(left.Deal.AnnouncedAt, right.Deal.AnnouncedAt),
		SizeMatch:          s.sizeMatch(left.Deal, right.Deal),
		TypeMatch:          s.typeMatch(left.TypeKey, right.TypeKey),
		CategoryCompatible: s.CategoriesCompatible(left, right),
	}
	scores.NameScore, scores.ExactMatch = s.nameScore(left, right)
	return scores
}

// nameScore scores the name attribute. Resolution through the alias index to
// the same canonical id, or equality of non-empty normalized keys, is the
// highest-trust path. Keys too short for fuzzy comparison only match exactly.
func (s *Scorer) nameScore(left, right *Record) (int, bool) {
	if left.Resolved && right.Resolved && left.CanonicalID == right.CanonicalID {
		return 100, true
	}
	if left.NameKey == "" || right.NameKey == "" {
		return 0, false
	}
	if left.NameKey == right.NameKey {
		return 100, true
	}
	if normalizers.ExactOnly(left.NameKey) || normalizers.ExactOnly(right.NameKey) {
		return 0, false
	}

	ratio := LevenshteinRatio(left.NameKey, right.NameKey)
	if pinned, ok := s.kb.Related(left.NameKey, right.NameKey); ok && pinned > ratio {
		ratio = pinned
	}
	return ratio, false
}

// sizeMatch checks deal sizes under the loose tolerances. An undisclosed size
// is compatible with anything here; the anomaly pass applies its own stricter
// rule.
func (s *Scorer) sizeMatch(left, right *models.Deal) bool {
	if !left.Disclosed() || !right.Disclosed() {
		return true
	}
	return SizesWithin(left.SizeMUSD, right.SizeMUSD, sizeRelTolerance, sizeAbsTolerance)
}

// typeMatch checks equality, containment either way, or curated equivalence.
func (s *Scorer) typeMatch(leftKey, rightKey string) bool {
	if leftKey == rightKey {
		return true
	}
	if leftKey == "" || rightKey == "" {
		return false
	}
	if containsEither(leftKey, rightKey) {
		return true
	}
	return s.kb.TypesEquivalent(leftKey, rightKey)
}

// CategoriesCompatible checks equality or curated adjacency. The first pass
// also uses this as its blocking predicate.
func (s *Scorer) CategoriesCompatible(left, right *Record) bool {
	if left.CategoryKey == right.CategoryKey {
		return true
	}
	if left.CategoryKey == "" || right.CategoryKey == "" {
		return false
	}
	return s.kb.CategoriesAdjacent(left.CategoryKey, right.CategoryKey)
}

// DateDiffDays returns the whole days between two dates, regardless of order.
func DateDiffDays(a, b time.Time) int {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// SizesWithin reports whether two disclosed sizes agree within a relative
// tolerance of the larger or an absolute tolerance in $M, whichever is
// looser.
func SizesWithin(a, b, relTolerance, absTolerance float64) bool {
	diff := math.Abs(a - b)
	larger := math.Max(a, b)
	if larger <= 0 {
		return true
	}
	return diff/larger <= relTolerance || diff <= absTolerance
}

// SizeDiff returns the absolute size difference in $M.
func SizeDiff(a, b float64) float64 {
	return math.Abs(a - b)
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}
