package merging

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// FieldMerger handles field-level merge logic
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// recordData is one company record's parsed payload plus the metadata merge
// decisions are made on.
type recordData struct {
	Data      map[string]any
	Status    models.CompanyStatus
	UpdatedAt time.Time
	RecordID  string
}

// MergeField merges a single field across the group's records. Records arrive
// in precedence order, so position is meaningful for the order-sensitive
// strategies.
func (m *FieldMerger) MergeField(field string, records []recordData, strategy models.FieldMergeStrategy) (any, *models.MergeConflict) {
	values := make([]fieldValue, 0, len(records))
	for _, record := range records {
		if val, ok := record.Data[field]; ok && val != nil {
			values = append(values, fieldValue{
				Value:     val,
				Status:    record.Status,
				UpdatedAt: record.UpdatedAt,
				RecordID:  record.RecordID,
			})
		}
	}

	if len(values) == 0 {
		return nil, nil
	}
	if len(values) == 1 {
		return values[0].Value, nil
	}

	conflict := m.detectConflict(field, values)

	var result any
	switch strategy.Strategy {
	case models.MergeStrategyCollectAll:
		result = m.collectAll(values, strategy.Dedup)
	case models.MergeStrategySourcePriority:
		result = m.byStatus(values)
	case models.MergeStrategyMostRecent:
		result = m.mostRecent(values)
	case models.MergeStrategyLongestValue:
		result = m.longest(values)
	case models.MergeStrategyFirstValue:
		result = values[0].Value
	case models.MergeStrategyPreferNonEmpty:
		result = m.preferNonEmpty(values)
	default:
		result = m.preferNonEmpty(values)
	}

	if conflict != nil {
		conflict.Resolution = string(strategy.Strategy)
		conflict.ResolvedValue = result
	}

	return result, conflict
}

// detectConflict reports a conflict when the collected values disagree.
// Collection strategies still record what was observed; the resolution names
// the strategy that decided.
func (m *FieldMerger) detectConflict(field string, values []fieldValue) *models.MergeConflict {
	first := fmt.Sprintf("%v", values[0].Value)
	allSame := true
	for i := 1; i < len(values); i++ {
		if fmt.Sprintf("%v", values[i].Value) != first {
			allSame = false
			break
		}
	}
	if allSame {
		return nil
	}

	conflictValues := make([]any, len(values))
	recordIDs := make([]string, len(values))
	for i, v := range values {
		conflictValues[i] = v.Value
		recordIDs[i] = v.RecordID
	}

	return &models.MergeConflict{
		Field:   field,
		Values:  conflictValues,
		Records: recordIDs,
	}
}

// collectAll combines all values into an array, flattening nested slices.
func (m *FieldMerger) collectAll(values []fieldValue, dedup bool) any {
	result := make([]any, 0, len(values))
	seen := make(map[string]bool)

	add := func(v any) {
		key := fmt.Sprintf("%v", v)
		if dedup && seen[key] {
			return
		}
		seen[key] = true
		result = append(result, v)
	}

	for _, v := range values {
		if v.Value != nil && reflect.TypeOf(v.Value).Kind() == reflect.Slice {
			rv := reflect.ValueOf(v.Value)
			for i := 0; i < rv.Len(); i++ {
				add(rv.Index(i).Interface())
			}
			continue
		}
		add(v.Value)
	}

	return result
}

// byStatus returns the value from the highest-status record. Ties keep the
// earlier record, which precedence order already ranks.
func (m *FieldMerger) byStatus(values []fieldValue) any {
	best := values[0]
	for _, v := range values[1:] {
		if v.Status.Rank() > best.Status.Rank() {
			best = v
		}
	}
	return best.Value
}

// mostRecent returns the most recently updated value. Ties keep the earlier
// record.
func (m *FieldMerger) mostRecent(values []fieldValue) any {
	sorted := make([]fieldValue, len(values))
	copy(sorted, values)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	return sorted[0].Value
}

// longest returns the longest string rendering of the values.
func (m *FieldMerger) longest(values []fieldValue) any {
	var longest any
	maxLen := -1
	for _, v := range values {
		s := fmt.Sprintf("%v", v.Value)
		if len(s) > maxLen {
			maxLen = len(s)
			longest = v.Value
		}
	}
	return longest
}

// preferNonEmpty returns the first non-empty value in precedence order.
func (m *FieldMerger) preferNonEmpty(values []fieldValue) any {
	for _, v := range values {
		if !isEmpty(v.Value) {
			return v.Value
		}
	}
	return values[0].Value
}

type fieldValue struct {
	Value     any
	Status    models.CompanyStatus
	UpdatedAt time.Time
	RecordID  string
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
