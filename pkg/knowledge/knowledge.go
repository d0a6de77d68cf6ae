// Package knowledge holds the curated tables the similarity scorer consults:
// related-company pairs (parent/subsidiary relationships and rebrands), deal
// type equivalence groups and category adjacency. The tables are read-only
// once compiled and are injected into the scorer at construction; clover
// loads them but never edits them.
package knowledge

import (
	"fmt"
	"os"

	"github.com/Ramsey-B/clover/pkg/normalizers"
	"gopkg.in/yaml.v3"
)

// DefaultRelatedScore is the pinned name score for curated related pairs when
// the file does not set one.
const DefaultRelatedScore = 90

// RelatedPair links two company names that are known to be the same economic
// entity under different labels.
type RelatedPair struct {
	A    string `yaml:"a"`
	B    string `yaml:"b"`
	Kind string `yaml:"kind,omitempty"` // subsidiary, rebrand
}

// File is the on-disk YAML shape of the curated tables.
type File struct {
	RelatedScore      int                 `yaml:"related_score"`
	RelatedPairs      []RelatedPair       `yaml:"related_pairs"`
	TypeEquivalents   [][]string          `yaml:"type_equivalents"`
	CategoryNeighbors map[string][]string `yaml:"category_neighbors"`
}

// Base is a compiled knowledge base. All keys are held normalized, so
// lookups expect normalized inputs.
type Base struct {
	relatedScore int
	related      map[string]map[string]bool
	typeGroups   map[string]int
	neighbors    map[string]map[string]bool
}

// New compiles a File into a Base. Company names normalize through the
// company-name canonicalizer, type and category labels through the label
// normalizer, so the YAML can be written in display form.
func New(file File) *Base {
	b := &Base{
		relatedScore: file.RelatedScore,
		related:      make(map[string]map[string]bool),
		typeGroups:   make(map[string]int),
		neighbors:    make(map[string]map[string]bool),
	}
	if b.relatedScore <= 0 {
		b.relatedScore = DefaultRelatedScore
	}

	for _, pair := range file.RelatedPairs {
		a := normalizers.CompanyName(pair.A)
		c := normalizers.CompanyName(pair.B)
		if a == "" || c == "" || a == c {
			continue
		}
		b.link(b.related, a, c)
	}

	for i, group := range file.TypeEquivalents {
		for _, label := range group {
			key := normalizers.Label(label)
			if key == "" {
				continue
			}
			if _, ok := b.typeGroups[key]; !ok {
				b.typeGroups[key] = i
			}
		}
	}

	for category, adjacent := range file.CategoryNeighbors {
		key := normalizers.Label(category)
		if key == "" {
			continue
		}
		for _, other := range adjacent {
			otherKey := normalizers.Label(other)
			if otherKey == "" || otherKey == key {
				continue
			}
			b.link(b.neighbors, key, otherKey)
		}
	}

	return b
}

func (b *Base) link(table map[string]map[string]bool, a, c string) {
	if table[a] == nil {
		table[a] = make(map[string]bool)
	}
	if table[c] == nil {
		table[c] = make(map[string]bool)
	}
	table[a][c] = true
	table[c][a] = true
}

// Load reads a YAML knowledge file.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}

	return New(file), nil
}

// LoadOrDefault loads the file at path, or the built-in defaults when path is
// empty.
func LoadOrDefault(path string) (*Base, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Related reports whether two normalized company keys are a curated related
// pair, and if so the pinned name score to use.
func (b *Base) Related(keyA, keyB string) (int, bool) {
	if keyA == "" || keyB == "" {
		return 0, false
	}
	if b.related[keyA][keyB] {
		return b.relatedScore, true
	}
	return 0, false
}

// TypesEquivalent reports whether two normalized type labels share a curated
// equivalence group.
func (b *Base) TypesEquivalent(a, c string) bool {
	if a == "" || c == "" {
		return false
	}
	groupA, okA := b.typeGroups[a]
	groupC, okC := b.typeGroups[c]
	return okA && okC && groupA == groupC
}

// CategoriesAdjacent reports whether two normalized category labels are
// curated neighbors.
func (b *Base) CategoriesAdjacent(a, c string) bool {
	if a == "" || c == "" {
		return false
	}
	return b.neighbors[a][c]
}

// Default returns the built-in curated tables. They cover the relationships
// that show up constantly in the deal feeds; tenants with richer curation
// point KNOWLEDGE_BASE_PATH at their own file.
func Default() *Base {
	return New(File{
		RelatedScore: DefaultRelatedScore,
		RelatedPairs: []RelatedPair{
			{A: "Facebook", B: "Meta", Kind: "rebrand"},
			{A: "Google", B: "Alphabet", Kind: "rebrand"},
			{A: "Square", B: "Block", Kind: "rebrand"},
			{A: "Activision Blizzard", B: "King", Kind: "subsidiary"},
			{A: "Take-Two Interactive", B: "Zynga", Kind: "subsidiary"},
			{A: "Embracer", B: "THQ Nordic", Kind: "rebrand"},
		},
		TypeEquivalents: [][]string{
			{"acquisition", "merger", "buyout", "m&a", "takeover"},
			{"ipo", "public offering", "going public", "listing"},
			{"seed", "pre-seed", "angel"},
			{"series a", "round a"},
			{"series b", "round b"},
			{"series c", "round c"},
			{"investment", "funding", "funding round"},
		},
		CategoryNeighbors: map[string][]string{
			"late-stage":  {"growth", "expansion"},
			"early-stage": {"seed", "series a", "series b"},
			"growth":      {"expansion"},
		},
	})
}
