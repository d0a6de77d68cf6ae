// Package fingerprint hashes content into stable identifiers. Runs use input
// fingerprints to skip re-processing unchanged datasets; merged cards carry a
// content fingerprint so downstream consumers can cheaply detect change.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate hashes a map's canonical JSON rendering. Key order never affects
// the result.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions hashes a map while skipping the given dot-notation
// field paths. Sync bookkeeping and timestamps are excluded this way so a
// re-delivered payload with fresh metadata still fingerprints identically.
func GenerateWithExclusions(data map[string]any, exclude map[string]bool) string {
	var b strings.Builder
	canonicalize(&b, data, exclude, "")
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// GenerateFromJSON hashes a raw JSON document through the same
// canonicalization as Generate.
func GenerateFromJSON(data json.RawMessage) (string, error) {
	return GenerateFromJSONWithExclusions(data, nil)
}

// GenerateFromJSONWithExclusions hashes raw JSON with field exclusions.
func GenerateFromJSONWithExclusions(data json.RawMessage, exclude map[string]bool) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return GenerateWithExclusions(m, exclude), nil
}

// FromStrings hashes an ordered list of values. Callers sort first when the
// list is a set; the values are NUL-separated so concatenation cannot
// collide.
func FromStrings(values []string) string {
	h := sha256.New()
	for i, v := range values {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HasChanged reports whether two fingerprints differ.
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

// canonicalize writes a deterministic rendering of the value: map keys
// sorted, arrays in order, primitives as JSON.
func canonicalize(b *strings.Builder, data any, exclude map[string]bool, path string) {
	switch v := data.(type) {
	case map[string]any:
		canonicalizeMap(b, v, exclude, path)
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, item, exclude, path)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}

func canonicalizeMap(b *strings.Builder, m map[string]any, exclude map[string]bool, path string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	first := true
	for _, k := range keys {
		fieldPath := k
		if path != "" {
			fieldPath = path + "." + k
		}
		if excluded(fieldPath, exclude) {
			continue
		}

		if !first {
			b.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(k)
		b.Write(keyJSON)
		b.WriteByte(':')
		canonicalize(b, m[k], exclude, fieldPath)
	}
	b.WriteByte('}')
}

// excluded matches a field path against the exclusion set. An excluded parent
// drops everything beneath it.
func excluded(fieldPath string, exclude map[string]bool) bool {
	if exclude == nil {
		return false
	}
	if exclude[fieldPath] {
		return true
	}
	for prefix := range exclude {
		if strings.HasPrefix(fieldPath, prefix+".") {
			return true
		}
	}
	return false
}
