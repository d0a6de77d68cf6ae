// Package aliasindex maps every known name variant of a company to one
// canonical id. The alias→id mapping is a function: a key claimed by two
// distinct ids is recorded as a collision and poisoned, and resolves to
// nothing from then on. Acting on a wrong alias corrupts downstream merges,
// so a collision is never silently resolved.
package aliasindex

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Collision records one normalized key claimed by more than one canonical id.
type Collision struct {
	Key string   `json:"key"`
	IDs []string `json:"ids"`
}

// Index holds the alias→id mapping plus phonetic postings for fuzzy lookup.
// Build once per run from the curated companies; read-only afterwards.
type Index struct {
	exact     map[string]string
	poisoned  map[string][]string
	soundex   map[string][]string
	metaphone map[string][]string
}

// Build indexes every company's primary name and aliases, each normalized
// independently.
func Build(companies []*models.Company) *Index {
	ix := &Index{
		exact:     make(map[string]string),
		poisoned:  make(map[string][]string),
		soundex:   make(map[string][]string),
		metaphone: make(map[string][]string),
	}

	for _, company := range companies {
		ix.add(company.ID, company.Name)
		for _, alias := range company.Aliases {
			ix.add(company.ID, alias)
		}
	}

	return ix
}

func (ix *Index) add(id, name string) {
	key := normalizers.CompanyName(name)
	if key == "" || id == "" {
		return
	}

	if ids, ok := ix.poisoned[key]; ok {
		ix.poisoned[key] = insertSorted(ids, id)
	} else if existing, ok := ix.exact[key]; ok {
		if existing != id {
			// Second distinct id for the key: poison it.
			delete(ix.exact, key)
			ix.poisoned[key] = insertSorted([]string{existing}, id)
		}
	} else {
		ix.exact[key] = id
	}

	ix.postPhonetic(key, id)
}

func (ix *Index) postPhonetic(key, id string) {
	if code := normalizers.Soundex(key); code != "" {
		ix.soundex[code] = insertSorted(ix.soundex[code], id)
	}
	if code := normalizers.Metaphone(key); code != "" {
		ix.metaphone[code] = insertSorted(ix.metaphone[code], id)
	}
}

// Lookup returns every canonical id the normalized key maps to: empty for an
// unknown key, one id for a clean mapping, several for a poisoned key.
func (ix *Index) Lookup(key string) []string {
	if key == "" {
		return nil
	}
	if ids, ok := ix.poisoned[key]; ok {
		out := make([]string, len(ids))
		copy(out, ids)
		return out
	}
	if id, ok := ix.exact[key]; ok {
		return []string{id}
	}
	return nil
}

// Resolve returns the canonical id for a key only when the mapping is
// unambiguous. A poisoned key never resolves, not even to one of its
// claimants.
func (ix *Index) Resolve(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	if _, ok := ix.poisoned[key]; ok {
		return "", false
	}
	id, ok := ix.exact[key]
	return id, ok
}

// FuzzyCandidates returns canonical ids whose aliases share a Soundex or
// Metaphone bucket with the key. Advisory only; callers still score the
// candidates.
func (ix *Index) FuzzyCandidates(key string) []string {
	if key == "" {
		return nil
	}

	var out []string
	if code := normalizers.Soundex(key); code != "" {
		for _, id := range ix.soundex[code] {
			out = insertSorted(out, id)
		}
	}
	if code := normalizers.Metaphone(key); code != "" {
		for _, id := range ix.metaphone[code] {
			out = insertSorted(out, id)
		}
	}
	return out
}

// Collisions lists every poisoned key with all of its claimant ids, sorted by
// key for deterministic reporting.
func (ix *Index) Collisions() []Collision {
	out := make([]Collision, 0, len(ix.poisoned))
	for key, ids := range ix.poisoned {
		copied := make([]string, len(ids))
		copy(copied, ids)
		out = append(out, Collision{Key: key, IDs: copied})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Keys returns the number of distinct normalized keys held, poisoned ones
// included.
func (ix *Index) Keys() int {
	return len(ix.exact) + len(ix.poisoned)
}

// insertSorted inserts id into a sorted slice, skipping duplicates.
func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}
