// Package normalizers provides string canonicalization for record matching.
// Every comparison in the match engine happens between normalized keys, never
// between raw source strings.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("alphanumeric", Alphanumeric)
	Register("fold_ascii", FoldASCII)
	Register("ncompany", CompanyName)
	Register("nlabel", Label)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// asciiFold maps the accented characters that actually show up in company
// names to their ASCII equivalents. Unmapped runes pass through.
var asciiFold = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o", 'ø': "o",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u",
	'ý': "y", 'ÿ': "y",
	'ñ': "n", 'ç': "c", 'š': "s", 'ž': "z",
	'ß': "ss", 'æ': "ae", 'œ': "oe", 'đ': "d", 'þ': "th",
	'À': "A", 'Á': "A", 'Â': "A", 'Ã': "A", 'Ä': "A", 'Å': "A",
	'È': "E", 'É': "E", 'Ê': "E", 'Ë': "E",
	'Ì': "I", 'Í': "I", 'Î': "I", 'Ï': "I",
	'Ò': "O", 'Ó': "O", 'Ô': "O", 'Õ': "O", 'Ö': "O", 'Ø': "O",
	'Ù': "U", 'Ú': "U", 'Û': "U", 'Ü': "U",
	'Ý': "Y", 'Ñ': "N", 'Ç': "C", 'Š': "S", 'Ž': "Z",
	'Æ': "AE", 'Œ': "OE", 'Đ': "D", 'Þ': "TH",
	'’': "'", '‘': "'", '“': "\"", '”': "\"",
	'–': "-", '—': "-",
}

// FoldASCII maps common accented characters to their ASCII equivalents
func FoldASCII(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r < 0x80 {
			result.WriteRune(r)
			continue
		}
		if rep, ok := asciiFold[r]; ok {
			result.WriteString(rep)
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// legalSuffixes are trailing tokens stripped from company names. Suffix
// stripping repeats until the trailing token is not a suffix, but never
// consumes the last remaining token.
var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"llc": true, "ltd": true, "limited": true, "company": true, "co": true,
	"plc": true, "gmbh": true, "ag": true, "sa": true, "srl": true,
	"bv": true, "nv": true, "holdings": true, "holding": true, "group": true,
	"studios": true, "studio": true, "games": true, "game": true,
	"interactive": true, "entertainment": true, "digital": true,
	"media": true, "international": true, "global": true,
}

// tickerRe matches parenthetical segments such as "(NASDAQ: ABCD)".
var tickerRe = regexp.MustCompile(`\([^)]*\)`)

// CompanyName canonicalizes a free-text company name into a comparison key:
// lowercase, accents folded, "&" spelled out, possessives and ticker
// parentheticals dropped, punctuation collapsed to single spaces and trailing
// legal-entity suffixes stripped. An empty or nil input produces an empty key,
// which never matches anything.
func CompanyName(s string) string {
	s = strings.ToLower(s)
	s = FoldASCII(s)
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "'", "")
	s = tickerRe.ReplaceAllString(s, " ")

	var mapped strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			mapped.WriteRune(r)
		} else {
			mapped.WriteRune(' ')
		}
	}

	tokens := strings.Fields(mapped.String())
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

// Label canonicalizes a deal type or category label for curated-table
// lookups. Hyphens and underscores widen to spaces; "&" is kept because type
// labels like "m&a" depend on it.
func Label(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// ExactOnly reports whether a normalized key is too short for fuzzy
// comparison. Two characters of signal produce junk edit-distance ratios, so
// such keys only ever match exactly.
func ExactOnly(key string) bool {
	return len([]rune(key)) <= 2
}
