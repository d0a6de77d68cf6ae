package aliasindex

import (
	"testing"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func company(id, name string, aliases ...string) *models.Company {
	return &models.Company{ID: id, Name: name, Aliases: aliases}
}

func TestIndex_Resolve(t *testing.T) {
	ix := Build([]*models.Company{
		company("id-1", "Acme Corporation", "Acme Widgets", "ACME"),
		company("id-2", "Globex Inc"),
	})

	t.Run("primary name resolves", func(t *testing.T) {
		id, ok := ix.Resolve(normalizers.CompanyName("Acme Corporation"))
		require.True(t, ok)
		assert.Equal(t, "id-1", id)
	})

	t.Run("every alias resolves to the same id", func(t *testing.T) {
		for _, variant := range []string{"Acme Widgets", "acme widgets", "ACME"} {
			id, ok := ix.Resolve(normalizers.CompanyName(variant))
			require.True(t, ok, "variant %q", variant)
			assert.Equal(t, "id-1", id)
		}
	})

	t.Run("unknown key does not resolve", func(t *testing.T) {
		_, ok := ix.Resolve("initech")
		assert.False(t, ok)
	})

	t.Run("empty key never resolves", func(t *testing.T) {
		_, ok := ix.Resolve("")
		assert.False(t, ok)
		assert.Nil(t, ix.Lookup(""))
	})
}

func TestIndex_Collision(t *testing.T) {
	// "Acme Co" for id-1 and, under different casing/punctuation, for id-2:
	// both normalize to the same key.
	ix := Build([]*models.Company{
		company("id-1", "First Holdings", "Acme Co"),
		company("id-2", "Second Holdings", "ACME CO."),
	})

	key := normalizers.CompanyName("acme co")

	t.Run("collision names both ids", func(t *testing.T) {
		collisions := ix.Collisions()
		require.Len(t, collisions, 1)
		assert.Equal(t, key, collisions[0].Key)
		assert.Equal(t, []string{"id-1", "id-2"}, collisions[0].IDs)
	})

	t.Run("poisoned key must not resolve to either id", func(t *testing.T) {
		_, ok := ix.Resolve(key)
		assert.False(t, ok)
	})

	t.Run("lookup still surfaces all claimants", func(t *testing.T) {
		assert.Equal(t, []string{"id-1", "id-2"}, ix.Lookup(key))
	})

	t.Run("late third claimant joins the collision", func(t *testing.T) {
		ix := Build([]*models.Company{
			company("id-1", "A", "Acme Co"),
			company("id-2", "B", "acme co"),
			company("id-3", "C", "Acme Co."),
		})
		collisions := ix.Collisions()
		require.Len(t, collisions, 1)
		assert.Equal(t, []string{"id-1", "id-2", "id-3"}, collisions[0].IDs)
	})

	t.Run("same id under many variants is not a collision", func(t *testing.T) {
		ix := Build([]*models.Company{
			company("id-1", "Acme Co", "acme co", "ACME CO."),
		})
		assert.Empty(t, ix.Collisions())
		id, ok := ix.Resolve(key)
		require.True(t, ok)
		assert.Equal(t, "id-1", id)
	})
}

func TestIndex_OrderIndependence(t *testing.T) {
	forward := Build([]*models.Company{
		company("id-1", "First", "Acme Co"),
		company("id-2", "Second", "ACME CO."),
	})
	reversed := Build([]*models.Company{
		company("id-2", "Second", "ACME CO."),
		company("id-1", "First", "Acme Co"),
	})

	assert.Equal(t, forward.Collisions(), reversed.Collisions())
	assert.Equal(t, forward.Keys(), reversed.Keys())
}

func TestIndex_FuzzyCandidates(t *testing.T) {
	ix := Build([]*models.Company{
		company("id-1", "Acme"),
		company("id-2", "Acma"), // same soundex bucket as acme
		company("id-3", "Globex"),
	})

	candidates := ix.FuzzyCandidates(normalizers.CompanyName("Acme"))
	assert.Contains(t, candidates, "id-1")
	assert.Contains(t, candidates, "id-2")
	assert.NotContains(t, candidates, "id-3")

	assert.Nil(t, ix.FuzzyCandidates(""))
}

func TestIndex_Keys(t *testing.T) {
	ix := Build([]*models.Company{
		company("id-1", "Acme Corporation", "Acme Widgets"),
		company("id-2", "Globex Inc"),
	})
	// acme, acme widgets, globex
	assert.Equal(t, 3, ix.Keys())
}
