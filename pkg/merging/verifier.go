package merging

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Verifier audits a run's merged output for referential and structural
// problems. Every finding becomes an exception; nothing is mutated.
type Verifier struct {
	logger ectologger.Logger
	index  *aliasindex.Index
}

// NewVerifier creates a new verifier over the run's alias index.
func NewVerifier(logger ectologger.Logger, index *aliasindex.Index) *Verifier {
	return &Verifier{logger: logger, index: index}
}

// VerifyInput is the full output of one run alongside the inputs it was
// produced from.
type VerifyInput struct {
	Merged    []*models.MergedCompany
	Records   []*models.CompanyRecord
	Deals     []*models.Deal
	DealPairs map[string]string
}

// nameArtifactRe flags separator litter a name parser leaves behind when a
// split or ticker strip goes wrong.
var nameArtifactRe = regexp.MustCompile(`^[\s,;:&/|-]|[\s,;:&/|-]$|\(\s*\)|\[\s*\]|\s{2,}`)

// Verify runs all audits and returns the combined findings.
func (v *Verifier) Verify(ctx context.Context, input VerifyInput) []Issue {
	ctx, span := tracing.StartSpan(ctx, "merging.Verifier.Verify")
	defer span.End()

	var issues []Issue
	issues = append(issues, v.orphanedDealRefs(input)...)
	issues = append(issues, v.targetCoverage(input)...)
	issues = append(issues, v.duplicateNames(input)...)
	issues = append(issues, v.cardQuality(input)...)

	v.logger.WithContext(ctx).WithFields(map[string]any{
		"merged_count": len(input.Merged),
		"deal_count":   len(input.Deals),
		"issue_count":  len(issues),
	}).Info("Verification complete")

	return issues
}

// orphanedDealRefs flags merged cards referencing deals that were never
// loaded. A dangling FK here means an upstream extract dropped rows.
func (v *Verifier) orphanedDealRefs(input VerifyInput) []Issue {
	known := make(map[string]bool, len(input.Deals))
	for _, deal := range input.Deals {
		known[deal.ID] = true
	}

	var issues []Issue
	for _, card := range input.Merged {
		for _, dealID := range card.DealIDs {
			if known[dealID] {
				continue
			}
			issues = append(issues, Issue{
				Kind:     models.ExceptionOrphanedDealRef,
				Message:  fmt.Sprintf("merged company %q references unknown deal %s", card.Name, dealID),
				RecordID: card.ID,
				Details:  map[string]any{"deal_id": dealID, "merged_name": card.Name},
			})
		}
	}
	return issues
}

// targetCoverage checks that every loaded deal ends up with exactly one
// target identity. Zero targets means the deal's subject was lost; several
// means distinct companies claim to be the same deal's subject.
func (v *Verifier) targetCoverage(input VerifyInput) []Issue {
	targets := make(map[string]map[string]bool, len(input.Deals))
	for _, record := range input.Records {
		if record.Role != models.CompanyRoleTarget {
			continue
		}
		identity := identityKey(v.index, record.Name)
		if identity == "" {
			continue
		}
		for _, dealID := range recordDealIDs(record, input.DealPairs) {
			set, ok := targets[dealID]
			if !ok {
				set = make(map[string]bool)
				targets[dealID] = set
			}
			set[identity] = true
		}
	}

	var issues []Issue
	for _, deal := range input.Deals {
		identities := targets[deal.ID]
		switch {
		case len(identities) == 0:
			issues = append(issues, Issue{
				Kind:    models.ExceptionMissingTarget,
				Message: fmt.Sprintf("deal %q has no target company", deal.Name),
				Details: map[string]any{"deal_id": deal.ID},
			})
		case len(identities) > 1:
			names := make([]string, 0, len(identities))
			for identity := range identities {
				names = append(names, identity)
			}
			sort.Strings(names)
			issues = append(issues, Issue{
				Kind:    models.ExceptionMultipleTargets,
				Message: fmt.Sprintf("deal %q has %d distinct target companies", deal.Name, len(identities)),
				Details: map[string]any{"deal_id": deal.ID, "identities": names},
			})
		}
	}
	return issues
}

// recordDealIDs lists the deals a record speaks for: its own plus the matched
// counterpart, if any.
func recordDealIDs(record *models.CompanyRecord, pairs map[string]string) []string {
	if record.DealID == "" {
		return nil
	}
	ids := []string{record.DealID}
	if other, ok := pairs[record.DealID]; ok && other != "" {
		ids = append(ids, other)
	}
	return ids
}

// duplicateNames flags merged cards whose names collapse to the same
// normalized key. Two cards with one identity means a missed alias.
func (v *Verifier) duplicateNames(input VerifyInput) []Issue {
	byKey := make(map[string][]*models.MergedCompany)
	for _, card := range input.Merged {
		key := normalizers.CompanyName(card.Name)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], card)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var issues []Issue
	for _, key := range keys {
		cards := byKey[key]
		if len(cards) < 2 {
			continue
		}
		names := make([]string, len(cards))
		for i, card := range cards {
			names[i] = card.Name
		}
		issues = append(issues, Issue{
			Kind:     models.ExceptionDuplicateMergedName,
			Message:  fmt.Sprintf("%d merged companies share the normalized name %q", len(cards), key),
			RecordID: cards[0].ID,
			Details:  map[string]any{"key": key, "names": names},
		})
	}
	return issues
}

// cardQuality flags structural problems in individual cards: empty or
// artifact-ridden names, unbalanced brackets, and cards with no deal at all.
func (v *Verifier) cardQuality(input VerifyInput) []Issue {
	var issues []Issue
	for _, card := range input.Merged {
		if strings.TrimSpace(card.Name) == "" {
			issues = append(issues, Issue{
				Kind:     models.ExceptionDataQuality,
				Message:  "merged company has an empty name",
				RecordID: card.ID,
			})
		} else if nameArtifactRe.MatchString(card.Name) || strings.Count(card.Name, "(") != strings.Count(card.Name, ")") {
			issues = append(issues, Issue{
				Kind:     models.ExceptionDataQuality,
				Message:  fmt.Sprintf("merged company name %q contains parsing artifacts", card.Name),
				RecordID: card.ID,
				Details:  map[string]any{"name": card.Name},
			})
		}

		if len(card.DealIDs) == 0 {
			issues = append(issues, Issue{
				Kind:     models.ExceptionDataQuality,
				Message:  fmt.Sprintf("merged company %q references no deals", card.Name),
				RecordID: card.ID,
				Details:  map[string]any{"merged_name": card.Name},
			})
		}
	}
	return issues
}
