package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("acme", "acme"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 4, LevenshteinDistance("", "acme"))
	assert.Equal(t, 1, LevenshteinDistance("globex", "glob3x"))
}

func TestLevenshteinRatio(t *testing.T) {
	assert.Equal(t, 100, LevenshteinRatio("acme", "acme"))
	assert.Equal(t, 100, LevenshteinRatio("", ""))
	assert.Equal(t, 0, LevenshteinRatio("ab", "xy"))
	assert.Equal(t, 94, LevenshteinRatio("lightspeed systems", "lightspeed sysfems"))
	assert.Equal(t, 57, LevenshteinRatio("kitten", "sitting"))
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("acme", "acme"))
	assert.Equal(t, 0.0, JaroWinkler("abc", "xyz"))
	assert.InDelta(t, 0.961, JaroWinkler("martha", "marhta"), 0.001)
	assert.Greater(t, JaroWinkler("acme studios", "acme studio"), 0.9)
}
