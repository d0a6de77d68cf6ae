package matching

import "github.com/Ramsey-B/clover/pkg/models"

// Calibrate maps attribute outcomes to a discrete confidence level through an
// ordered decision table; the first matching row wins. A table, not a
// weighted sum, so every assigned confidence can be traced to one auditable
// rule.
//
// The review bucket (40) is never produced here. Only the anomaly pass
// assigns it, for pairs that look like the same event under the wrong
// company label.
func Calibrate(s models.AttributeScores) models.Confidence {
	switch {
	case s.ExactMatch && s.DateDiffDays <= 35 && s.SizeMatch && s.TypeMatch && s.CategoryCompatible:
		return models.ConfidenceExact
	case s.ExactMatch && s.DateDiffDays <= 60 && s.CategoryCompatible:
		return models.ConfidenceStrong
	case s.ExactMatch:
		return models.ConfidenceModerate
	case s.NameScore >= 90 && s.DateDiffDays <= 35 && s.SizeMatch && s.TypeMatch && s.CategoryCompatible:
		return models.ConfidenceStrong
	case s.NameScore >= 90 && s.DateDiffDays <= 60 && s.CategoryCompatible:
		return models.ConfidenceModerate
	case s.NameScore >= 80 && s.DateDiffDays <= 60 && s.CategoryCompatible:
		return models.ConfidenceModerate
	case s.NameScore >= 70 && s.DateDiffDays <= 90:
		return models.ConfidenceWeak
	default:
		return models.ConfidenceNone
	}
}
