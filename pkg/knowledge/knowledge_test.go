package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_Related(t *testing.T) {
	base := New(File{
		RelatedPairs: []RelatedPair{
			{A: "Facebook, Inc.", B: "Meta"},
		},
	})

	t.Run("pair is symmetric and normalized", func(t *testing.T) {
		score, ok := base.Related("facebook", "meta")
		assert.True(t, ok)
		assert.Equal(t, DefaultRelatedScore, score)

		score, ok = base.Related("meta", "facebook")
		assert.True(t, ok)
		assert.Equal(t, DefaultRelatedScore, score)
	})

	t.Run("unrelated keys miss", func(t *testing.T) {
		_, ok := base.Related("facebook", "alphabet")
		assert.False(t, ok)
	})

	t.Run("empty keys never relate", func(t *testing.T) {
		_, ok := base.Related("", "meta")
		assert.False(t, ok)
	})

	t.Run("file can pin a custom score", func(t *testing.T) {
		custom := New(File{
			RelatedScore: 85,
			RelatedPairs: []RelatedPair{{A: "a corp", B: "b corp"}},
		})
		score, ok := custom.Related("a", "b")
		assert.True(t, ok)
		assert.Equal(t, 85, score)
	})
}

func TestBase_TypesEquivalent(t *testing.T) {
	base := Default()

	assert.True(t, base.TypesEquivalent("acquisition", "merger"))
	assert.True(t, base.TypesEquivalent("buyout", "m&a"))
	assert.True(t, base.TypesEquivalent("ipo", "public offering"))
	assert.False(t, base.TypesEquivalent("acquisition", "ipo"))
	assert.False(t, base.TypesEquivalent("acquisition", ""))
	assert.False(t, base.TypesEquivalent("unknown", "unknown"))
}

func TestBase_CategoriesAdjacent(t *testing.T) {
	base := Default()

	// Labels are normalized at compile time, so lookups use label form.
	assert.True(t, base.CategoriesAdjacent("late stage", "growth"))
	assert.True(t, base.CategoriesAdjacent("growth", "late stage"))
	assert.True(t, base.CategoriesAdjacent(normalizers.Label("Early-Stage"), "seed"))
	assert.False(t, base.CategoriesAdjacent("late stage", "seed"))
	assert.False(t, base.CategoriesAdjacent("", "growth"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.yaml")
	content := []byte(`
related_score: 88
related_pairs:
  - a: "Old Name Ltd"
    b: "New Name"
    kind: rebrand
type_equivalents:
  - ["acquisition", "merger"]
category_neighbors:
  growth: ["expansion"]
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	base, err := Load(path)
	require.NoError(t, err)

	score, ok := base.Related("old name", "new name")
	assert.True(t, ok)
	assert.Equal(t, 88, score)
	assert.True(t, base.TypesEquivalent("acquisition", "merger"))
	assert.True(t, base.CategoriesAdjacent("growth", "expansion"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/knowledge.yaml")
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	base, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.True(t, base.TypesEquivalent("seed", "angel"))
}
