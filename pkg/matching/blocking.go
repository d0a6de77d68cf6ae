package matching

import (
	"sort"
	"time"
)

// DateIndex holds prepared records ordered by announcement date so that a
// date window can be answered with two binary searches instead of a full
// scan. Ties on the same date are broken by source key to keep iteration
// order stable across runs.
type DateIndex struct {
	records []*Record
}

// NewDateIndex builds an index over the given records. The input slice is
// not retained; records are copied into an internal slice and sorted.
func NewDateIndex(records []*Record) *DateIndex {
	sorted := make([]*Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Deal.AnnouncedAt.Equal(b.Deal.AnnouncedAt) {
			return a.Deal.AnnouncedAt.Before(b.Deal.AnnouncedAt)
		}
		return a.Deal.SourceKey < b.Deal.SourceKey
	})

	return &DateIndex{records: sorted}
}

// Window returns the records announced within ±days of center, in date
// order. The returned slice aliases the index and must not be mutated.
func (idx *DateIndex) Window(center time.Time, days int) []*Record {
	if len(idx.records) == 0 {
		return nil
	}

	span := time.Duration(days) * 24 * time.Hour
	lo := center.Add(-span)
	hi := center.Add(span)

	start := sort.Search(len(idx.records), func(i int) bool {
		return !idx.records[i].Deal.AnnouncedAt.Before(lo)
	})
	end := sort.Search(len(idx.records), func(i int) bool {
		return idx.records[i].Deal.AnnouncedAt.After(hi)
	})
	if start >= end {
		return nil
	}

	return idx.records[start:end]
}

// Len reports the number of indexed records.
func (idx *DateIndex) Len() int {
	return len(idx.records)
}

// WeekKey identifies an ISO week. Partitioning candidates by week bounds the
// number of records any one probe has to touch without changing which pairs
// are compared; windows always span whole weeks and filter by exact day
// difference afterwards.
type WeekKey struct {
	Year int
	Week int
}

// ISOWeek returns the partition key for a timestamp.
func ISOWeek(t time.Time) WeekKey {
	year, week := t.ISOWeek()
	return WeekKey{Year: year, Week: week}
}

// WeekPartition groups records by ISO week of their announcement date.
type WeekPartition map[WeekKey][]*Record

// PartitionByWeek buckets records by ISO week. Each bucket is sorted by
// (date, source key) so that downstream iteration is deterministic.
func PartitionByWeek(records []*Record) WeekPartition {
	part := make(WeekPartition)
	for _, rec := range records {
		key := ISOWeek(rec.Deal.AnnouncedAt)
		part[key] = append(part[key], rec)
	}
	for _, bucket := range part {
		sort.Slice(bucket, func(i, j int) bool {
			a, b := bucket[i], bucket[j]
			if !a.Deal.AnnouncedAt.Equal(b.Deal.AnnouncedAt) {
				return a.Deal.AnnouncedAt.Before(b.Deal.AnnouncedAt)
			}
			return a.Deal.SourceKey < b.Deal.SourceKey
		})
	}

	return part
}

// Window returns the records announced within ±days of center, gathered from
// the week buckets the window overlaps. Results are in (date, source key)
// order.
func (p WeekPartition) Window(center time.Time, days int) []*Record {
	if len(p) == 0 {
		return nil
	}

	span := time.Duration(days) * 24 * time.Hour
	lo := center.Add(-span)
	hi := center.Add(span)

	seen := make(map[WeekKey]bool)
	var out []*Record
	for cursor := lo; !cursor.After(hi); cursor = cursor.Add(7 * 24 * time.Hour) {
		collectWeek(p, ISOWeek(cursor), seen, center, days, &out)
	}
	// The 7-day cursor can step past hi's week without visiting it.
	collectWeek(p, ISOWeek(hi), seen, center, days, &out)

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Deal.AnnouncedAt.Equal(b.Deal.AnnouncedAt) {
			return a.Deal.AnnouncedAt.Before(b.Deal.AnnouncedAt)
		}
		return a.Deal.SourceKey < b.Deal.SourceKey
	})

	return out
}

func collectWeek(p WeekPartition, key WeekKey, seen map[WeekKey]bool, center time.Time, days int, out *[]*Record) {
	if seen[key] {
		return
	}
	seen[key] = true
	for _, rec := range p[key] {
		if DateDiffDays(rec.Deal.AnnouncedAt, center) <= days {
			*out = append(*out, rec)
		}
	}
}
