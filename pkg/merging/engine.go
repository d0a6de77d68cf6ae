// Package merging consolidates a run's company records into merged company
// cards: one card per canonical identity, deal references and roles
// concatenated rather than overwritten, and descriptive fields resolved by
// explicit strategies with every disagreement recorded.
package merging

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Engine handles company card consolidation
type Engine struct {
	logger      ectologger.Logger
	index       *aliasindex.Index
	fieldMerger *FieldMerger
	strategies  map[string]models.FieldMergeStrategy
}

// NewEngine creates a new merge engine over the run's alias index. Field
// strategies override the defaults (collect-all for list fields, first
// non-empty otherwise).
func NewEngine(logger ectologger.Logger, index *aliasindex.Index, strategies []models.FieldMergeStrategy) *Engine {
	byField := make(map[string]models.FieldMergeStrategy, len(strategies))
	for _, s := range strategies {
		byField[s.Field] = s
	}
	return &Engine{
		logger:      logger,
		index:       index,
		fieldMerger: NewFieldMerger(),
		strategies:  byField,
	}
}

// Input is the record population for one merge, scoped to a tenant and run.
// DealPairs maps each matched deal id to its counterpart in both directions,
// so a card referencing either side of a matched pair lists both ids.
type Input struct {
	TenantID  string
	RunID     string
	Records   []*models.CompanyRecord
	DealPairs map[string]string
}

// Issue flags a record or group the merge could not consolidate cleanly.
type Issue struct {
	Kind     models.ExceptionKind
	Message  string
	RecordID string
	Details  map[string]any
}

// Output is the consolidated result. Cards are ordered by group key, so the
// same input always yields the same output order.
type Output struct {
	Merged []*models.MergedCompany
	Issues []Issue
}

// Merge groups the records by canonical identity and consolidates each group
// into one card. Groups with contradictory roles are excluded and flagged;
// the run continues.
func (e *Engine) Merge(ctx context.Context, input Input) (*Output, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    input.TenantID,
		"run_id":       input.RunID,
		"record_count": len(input.Records),
	})
	log.Info("Starting merge")

	out := &Output{}
	groups := e.groupRecords(input.Records, out)

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		group := groups[key]
		sortByPrecedence(group.records)

		if issue, conflicted := roleConflict(group); conflicted {
			out.Issues = append(out.Issues, issue)
			continue
		}

		out.Merged = append(out.Merged, e.mergeGroup(input, group, out))
	}

	log.WithFields(map[string]any{
		"merged_count": len(out.Merged),
		"issue_count":  len(out.Issues),
	}).Info("Merge complete")

	return out, nil
}

// identityGroup is the set of records resolving to one company identity.
type identityGroup struct {
	canonicalID string // empty for must-be-created companies
	records     []*models.CompanyRecord
}

// identityKey returns the merge group key for a company name: the canonical
// company id when the alias index resolves it, otherwise the normalized name
// itself. Empty for unusable names (blank after normalization, or claimed by
// more than one company).
func identityKey(index *aliasindex.Index, name string) string {
	key := normalizers.CompanyName(name)
	if key == "" {
		return ""
	}
	claimants := index.Lookup(key)
	if len(claimants) > 1 {
		return ""
	}
	if len(claimants) == 1 {
		return "company:" + claimants[0]
	}
	return "name:" + key
}

func (e *Engine) groupRecords(records []*models.CompanyRecord, out *Output) map[string]*identityGroup {
	groups := make(map[string]*identityGroup)
	for _, record := range records {
		key := normalizers.CompanyName(record.Name)
		if key == "" {
			out.Issues = append(out.Issues, Issue{
				Kind:     models.ExceptionDataQuality,
				Message:  fmt.Sprintf("company record %q has an empty name after normalization", record.SourceKey),
				RecordID: record.ID,
				Details:  map[string]any{"name": record.Name},
			})
			continue
		}

		claimants := e.index.Lookup(key)
		if len(claimants) > 1 {
			out.Issues = append(out.Issues, Issue{
				Kind:     models.ExceptionAmbiguousAlias,
				Message:  fmt.Sprintf("name %q is claimed by %d companies and cannot be merged", record.Name, len(claimants)),
				RecordID: record.ID,
				Details:  map[string]any{"key": key, "company_ids": claimants},
			})
			continue
		}

		groupKey := "name:" + key
		canonicalID := ""
		if len(claimants) == 1 {
			canonicalID = claimants[0]
			groupKey = "company:" + canonicalID
		}

		group, ok := groups[groupKey]
		if !ok {
			group = &identityGroup{canonicalID: canonicalID}
			groups[groupKey] = group
		}
		group.records = append(group.records, record)
	}
	return groups
}

// sortByPrecedence orders a group's records by status rank, then source key.
// The first record after sorting is the base record for the card.
func sortByPrecedence(records []*models.CompanyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Status.Rank() != b.Status.Rank() {
			return a.Status.Rank() > b.Status.Rank()
		}
		if a.SourceKey != b.SourceKey {
			return a.SourceKey < b.SourceKey
		}
		return a.ID < b.ID
	})
}

// roleConflict reports a group where one identity plays both target and a
// counterparty role within the same deal. A company cannot acquire or invest
// in itself; such a group is contradictory and must be reviewed, not merged.
func roleConflict(group *identityGroup) (Issue, bool) {
	rolesByDeal := make(map[string]map[models.CompanyRole]bool)
	for _, record := range group.records {
		if record.DealID == "" {
			continue
		}
		set, ok := rolesByDeal[record.DealID]
		if !ok {
			set = make(map[models.CompanyRole]bool)
			rolesByDeal[record.DealID] = set
		}
		set[record.Role] = true
	}

	dealIDs := make([]string, 0, len(rolesByDeal))
	for dealID := range rolesByDeal {
		dealIDs = append(dealIDs, dealID)
	}
	sort.Strings(dealIDs)

	for _, dealID := range dealIDs {
		set := rolesByDeal[dealID]
		if set[models.CompanyRoleTarget] && (set[models.CompanyRoleAcquirer] || set[models.CompanyRoleInvestor]) {
			base := group.records[0]
			return Issue{
				Kind:     models.ExceptionRoleConflict,
				Message:  fmt.Sprintf("company %q is both target and counterparty of deal %s", base.Name, dealID),
				RecordID: base.ID,
				Details:  map[string]any{"deal_id": dealID, "record_count": len(group.records)},
			}, true
		}
	}
	return Issue{}, false
}

func (e *Engine) mergeGroup(input Input, group *identityGroup, out *Output) *models.MergedCompany {
	base := group.records[0]

	merged := &models.MergedCompany{
		TenantID:    input.TenantID,
		RunID:       input.RunID,
		Name:        base.Name,
		Status:      base.Status,
		Aliases:     collectAliases(group.records),
		DealIDs:     collectDealIDs(group.records, input.DealPairs),
		Roles:       collectRoles(group.records),
		SourceCount: len(group.records),
	}
	if group.canonicalID != "" {
		id := group.canonicalID
		merged.CompanyID = &id
	}

	data, conflicts := e.mergeData(group.records)
	merged.Data = database.JSONB[map[string]any]{Data: data}
	merged.Conflicts = database.JSONB[[]models.MergeConflict]{Data: conflicts}
	merged.Fingerprint = cardFingerprint(merged)

	if len(conflicts) > 0 {
		fields := make([]string, 0, len(conflicts))
		for _, c := range conflicts {
			fields = append(fields, c.Field)
		}
		out.Issues = append(out.Issues, Issue{
			Kind:     models.ExceptionMergeConflict,
			Message:  fmt.Sprintf("company %q merged with %d field conflicts", merged.Name, len(conflicts)),
			RecordID: base.ID,
			Details:  map[string]any{"fields": fields},
		})
	}

	return merged
}

// collectAliases gathers every distinct observed spelling, base first.
func collectAliases(records []*models.CompanyRecord) pq.StringArray {
	seen := make(map[string]bool, len(records))
	aliases := make(pq.StringArray, 0, len(records))
	for _, record := range records {
		if record.Name == "" || seen[record.Name] {
			continue
		}
		seen[record.Name] = true
		aliases = append(aliases, record.Name)
	}
	return aliases
}

// collectDealIDs concatenates deal references in precedence order. A matched
// deal contributes both sides of its pair.
func collectDealIDs(records []*models.CompanyRecord, pairs map[string]string) pq.StringArray {
	seen := make(map[string]bool, len(records))
	ids := make(pq.StringArray, 0, len(records))
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, record := range records {
		add(record.DealID)
		add(pairs[record.DealID])
	}
	return ids
}

// collectRoles gathers the distinct roles in a fixed order.
func collectRoles(records []*models.CompanyRecord) pq.StringArray {
	seen := make(map[models.CompanyRole]bool, len(records))
	for _, record := range records {
		if record.Role != "" {
			seen[record.Role] = true
		}
	}
	roles := make(pq.StringArray, 0, len(seen))
	for _, role := range []models.CompanyRole{models.CompanyRoleTarget, models.CompanyRoleAcquirer, models.CompanyRoleInvestor} {
		if seen[role] {
			roles = append(roles, string(role))
		}
	}
	return roles
}

// mergeData consolidates the records' descriptive payloads field by field.
func (e *Engine) mergeData(records []*models.CompanyRecord) (map[string]any, []models.MergeConflict) {
	parsed := make([]recordData, 0, len(records))
	for _, record := range records {
		data := map[string]any{}
		if len(record.Data) > 0 {
			// Unparseable payloads contribute nothing; the record still
			// counts for FKs and roles.
			if err := json.Unmarshal(record.Data, &data); err != nil {
				data = map[string]any{}
			}
		}
		parsed = append(parsed, recordData{
			Data:      data,
			Status:    record.Status,
			UpdatedAt: record.UpdatedAt,
			RecordID:  record.ID,
		})
	}

	fieldSet := make(map[string]bool)
	for _, pd := range parsed {
		for field := range pd.Data {
			fieldSet[field] = true
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for field := range fieldSet {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	result := make(map[string]any, len(fields))
	var conflicts []models.MergeConflict
	for _, field := range fields {
		strategy, ok := e.strategies[field]
		if !ok {
			strategy = defaultStrategy(field, parsed)
		}

		value, conflict := e.fieldMerger.MergeField(field, parsed, strategy)
		if value != nil {
			result[field] = value
		}
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}
	return result, conflicts
}

// defaultStrategy picks collect-all for list fields and first non-empty for
// everything else.
func defaultStrategy(field string, parsed []recordData) models.FieldMergeStrategy {
	for _, pd := range parsed {
		value, ok := pd.Data[field]
		if !ok || value == nil {
			continue
		}
		if reflect.TypeOf(value).Kind() == reflect.Slice {
			return models.FieldMergeStrategy{Field: field, Strategy: models.MergeStrategyCollectAll, Dedup: true}
		}
	}
	return models.FieldMergeStrategy{Field: field, Strategy: models.MergeStrategyPreferNonEmpty}
}

// cardFingerprint hashes the card's canonical content; timestamps and ids are
// excluded so an unchanged card keeps its fingerprint across runs.
func cardFingerprint(merged *models.MergedCompany) string {
	return fingerprint.Generate(map[string]any{
		"name":     merged.Name,
		"status":   string(merged.Status),
		"aliases":  []string(merged.Aliases),
		"deal_ids": []string(merged.DealIDs),
		"roles":    []string(merged.Roles),
		"data":     merged.Data.Data,
	})
}
