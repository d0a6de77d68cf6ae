// Package extractor turns raw feed rows into typed upsert payloads. Source
// feeds disagree on date layouts, size notation and field nesting, so every
// field is pulled by a configurable path and coerced through one parser.
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Extractor handles extracting values from nested data structures
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// DealFields maps deal upsert fields to paths inside a raw feed row.
type DealFields struct {
	Source      string
	SourceKey   string
	Name        string
	AnnouncedAt string
	SizeMUSD    string
	Type        string
	Category    string
	Parties     string
	SyncID      string
}

// PartyFields maps party fields to paths inside one party element.
type PartyFields struct {
	SourceKey string
	Name      string
	Role      string
	Status    string
}

// CompanyFields maps company upsert fields to paths inside a raw feed row.
type CompanyFields struct {
	SourceKey string
	Name      string
	Status    string
	Aliases   string
}

// DefaultDealFields matches the canonical deal.upserted payload shape.
func DefaultDealFields() DealFields {
	return DealFields{
		Source:      "source",
		SourceKey:   "source_key",
		Name:        "name",
		AnnouncedAt: "announced_at",
		SizeMUSD:    "size_musd",
		Type:        "type",
		Category:    "category",
		Parties:     "parties",
		SyncID:      "sync_id",
	}
}

// DefaultPartyFields matches the canonical party element shape.
func DefaultPartyFields() PartyFields {
	return PartyFields{
		SourceKey: "source_key",
		Name:      "name",
		Role:      "role",
		Status:    "status",
	}
}

// DefaultCompanyFields matches the canonical company.upserted payload shape.
func DefaultCompanyFields() CompanyFields {
	return CompanyFields{
		SourceKey: "source_key",
		Name:      "name",
		Status:    "status",
		Aliases:   "aliases",
	}
}

// Deal extracts a typed deal upsert from a raw feed row. The whole row is
// preserved as the upsert's Data so nothing a source sent is lost.
func (e *Extractor) Deal(row map[string]any, fields DealFields) (*models.DealUpsert, error) {
	upsert := &models.DealUpsert{}

	source, err := e.stringAt(row, fields.Source)
	if err != nil {
		return nil, err
	}
	upsert.Source = models.RecordSource(strings.ToLower(strings.TrimSpace(source)))

	if upsert.SourceKey, err = e.stringAt(row, fields.SourceKey); err != nil {
		return nil, err
	}
	if upsert.Name, err = e.stringAt(row, fields.Name); err != nil {
		return nil, err
	}
	if upsert.Type, err = e.stringAt(row, fields.Type); err != nil {
		return nil, err
	}
	if upsert.Category, err = e.stringAt(row, fields.Category); err != nil {
		return nil, err
	}
	if upsert.SyncID, err = e.stringAt(row, fields.SyncID); err != nil {
		return nil, err
	}

	announced, err := e.Extract(row, fields.AnnouncedAt)
	if err != nil {
		return nil, err
	}
	if upsert.AnnouncedAt, err = ParseAnnounced(announced); err != nil {
		return nil, fmt.Errorf("field %q: %w", fields.AnnouncedAt, err)
	}

	size, err := e.Extract(row, fields.SizeMUSD)
	if err != nil {
		return nil, err
	}
	if upsert.SizeMUSD, err = ParseSizeMUSD(size); err != nil {
		return nil, fmt.Errorf("field %q: %w", fields.SizeMUSD, err)
	}

	parties, err := e.Extract(row, fields.Parties)
	if err != nil {
		return nil, err
	}
	if upsert.Parties, err = e.parties(parties); err != nil {
		return nil, fmt.Errorf("field %q: %w", fields.Parties, err)
	}

	if upsert.Data, err = json.Marshal(row); err != nil {
		return nil, err
	}
	return upsert, nil
}

func (e *Extractor) parties(value any) ([]models.PartyUpsert, error) {
	if value == nil {
		return nil, nil
	}
	arr, ok := toArray(value)
	if !ok {
		return nil, fmt.Errorf("expected an array of parties, got %T", value)
	}

	fields := DefaultPartyFields()
	parties := make([]models.PartyUpsert, 0, len(arr))
	for i, element := range arr {
		row, ok := element.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("party %d is %T, not an object", i, element)
		}

		party := models.PartyUpsert{}
		var err error
		if party.SourceKey, err = e.stringAt(row, fields.SourceKey); err != nil {
			return nil, err
		}
		if party.Name, err = e.stringAt(row, fields.Name); err != nil {
			return nil, err
		}

		role, err := e.Extract(row, fields.Role)
		if err != nil {
			return nil, err
		}
		if party.Role, err = ParseRole(role); err != nil {
			return nil, fmt.Errorf("party %d: %w", i, err)
		}

		status, err := e.stringAt(row, fields.Status)
		if err != nil {
			return nil, err
		}
		party.Status = models.CompanyStatus(strings.ToLower(strings.TrimSpace(status)))

		if party.Data, err = json.Marshal(row); err != nil {
			return nil, err
		}
		parties = append(parties, party)
	}
	return parties, nil
}

// Company extracts a typed company upsert from a raw feed row.
func (e *Extractor) Company(row map[string]any, fields CompanyFields) (*models.CompanyUpsert, error) {
	upsert := &models.CompanyUpsert{}

	var err error
	if upsert.SourceKey, err = e.stringAt(row, fields.SourceKey); err != nil {
		return nil, err
	}
	if upsert.Name, err = e.stringAt(row, fields.Name); err != nil {
		return nil, err
	}

	status, err := e.stringAt(row, fields.Status)
	if err != nil {
		return nil, err
	}
	upsert.Status = models.CompanyStatus(strings.ToLower(strings.TrimSpace(status)))

	aliases, err := e.Extract(row, fields.Aliases)
	if err != nil {
		return nil, err
	}
	if aliases != nil {
		arr, ok := toArray(aliases)
		if !ok {
			return nil, fmt.Errorf("field %q: expected an array, got %T", fields.Aliases, aliases)
		}
		for _, alias := range arr {
			if s := strings.TrimSpace(toString(alias)); s != "" {
				upsert.Aliases = append(upsert.Aliases, s)
			}
		}
	}
	return upsert, nil
}

// announcedLayouts covers the date notations seen across source feeds,
// tried in order.
var announcedLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseAnnounced coerces a feed value to an announcement date. Nil and empty
// values yield the zero time; the caller decides whether that is acceptable.
func ParseAnnounced(value any) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range announcedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	case float64:
		// Unix seconds, the only numeric date notation seen in feeds.
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %T", value)
	}
}

// undisclosedSizes are the feed spellings of "no size published".
var undisclosedSizes = map[string]bool{
	"":            true,
	"undisclosed": true,
	"n/a":         true,
	"na":          true,
	"-":           true,
	"unknown":     true,
}

// ParseSizeMUSD coerces a feed value to a deal size in millions of USD.
// Accepts plain numbers and notations like "$1.2B", "750M", "1,200",
// "500k". Undisclosed spellings yield zero.
func ParseSizeMUSD(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("negative deal size %v", v)
		}
		return v, nil
	case int:
		return ParseSizeMUSD(float64(v))
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if undisclosedSizes[s] {
			return 0, nil
		}

		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)

		scale := 1.0
		switch {
		case strings.HasSuffix(s, "b"):
			scale = 1000
			s = strings.TrimSuffix(s, "b")
		case strings.HasSuffix(s, "m"):
			s = strings.TrimSuffix(s, "m")
		case strings.HasSuffix(s, "k"):
			scale = 0.001
			s = strings.TrimSuffix(s, "k")
		}

		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable deal size %q", v)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative deal size %q", v)
		}
		return n * scale, nil
	default:
		return 0, fmt.Errorf("unsupported size value %T", value)
	}
}

// roleSpellings maps feed role labels to canonical roles.
var roleSpellings = map[string]models.CompanyRole{
	"target":   models.CompanyRoleTarget,
	"acquirer": models.CompanyRoleAcquirer,
	"acquiror": models.CompanyRoleAcquirer,
	"buyer":    models.CompanyRoleAcquirer,
	"investor": models.CompanyRoleInvestor,
}

// ParseRole coerces a feed value to a canonical company role.
func ParseRole(value any) (models.CompanyRole, error) {
	s := strings.ToLower(strings.TrimSpace(toString(value)))
	if role, ok := roleSpellings[s]; ok {
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Extract extracts a value from data using a JSONPath-like expression
// Supported syntax:
// - Simple path: "name", "address.city", "terms.size"
// - Array access: "parties[0]", "parties[*].name" (first match)
func (e *Extractor) Extract(data any, path string) (any, error) {
	if path == "" {
		return nil, nil
	}

	parts := parsePath(path)
	current := data

	for _, part := range parts {
		var err error
		current, err = e.extractPart(current, part)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
	}

	return current, nil
}

// stringAt extracts a value and trims it to a string; a missing value is the
// empty string.
func (e *Extractor) stringAt(data any, path string) (string, error) {
	value, err := e.Extract(data, path)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return strings.TrimSpace(toString(value)), nil
}

// pathPart represents a parsed path segment
type pathPart struct {
	key        string
	isArray    bool
	arrayIndex int
	isWildcard bool
}

// parsePath parses a JSONPath-like expression into parts
func parsePath(path string) []pathPart {
	var parts []pathPart

	segments := splitPath(path)
	for _, seg := range segments {
		part := pathPart{key: seg}

		if idx := strings.Index(seg, "["); idx != -1 {
			part.key = seg[:idx]
			indexPart := seg[idx+1 : len(seg)-1]

			if indexPart == "*" {
				part.isWildcard = true
				part.isArray = true
			} else {
				i, err := strconv.Atoi(indexPart)
				if err == nil {
					part.isArray = true
					part.arrayIndex = i
				}
			}
		}

		parts = append(parts, part)
	}

	return parts
}

// splitPath splits a dot-notation path, respecting array brackets
func splitPath(path string) []string {
	var parts []string
	var current strings.Builder

	inBracket := false
	for _, c := range path {
		switch c {
		case '[':
			inBracket = true
			current.WriteRune(c)
		case ']':
			inBracket = false
			current.WriteRune(c)
		case '.':
			if !inBracket {
				if current.Len() > 0 {
					parts = append(parts, current.String())
					current.Reset()
				}
			} else {
				current.WriteRune(c)
			}
		default:
			current.WriteRune(c)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// extractPart extracts a value for a single path part
func (e *Extractor) extractPart(data any, part pathPart) (any, error) {
	var value any = data

	if part.key != "" {
		switch v := data.(type) {
		case map[string]any:
			val, ok := v[part.key]
			if !ok {
				return nil, nil
			}
			value = val
		case map[string]string:
			val, ok := v[part.key]
			if !ok {
				return nil, nil
			}
			value = val
		default:
			return nil, fmt.Errorf("cannot extract key %q from type %T", part.key, data)
		}
	}

	if part.isArray {
		arr, ok := toArray(value)
		if !ok {
			return nil, fmt.Errorf("expected array for index access, got %T", value)
		}
		if part.isWildcard {
			if len(arr) == 0 {
				return nil, nil
			}
			return arr[0], nil
		}
		if part.arrayIndex < 0 || part.arrayIndex >= len(arr) {
			return nil, nil
		}
		return arr[part.arrayIndex], nil
	}

	return value, nil
}

// toArray converts a value to an array
func toArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		result := make([]any, len(arr))
		for i, s := range arr {
			result[i] = s
		}
		return result, true
	case []map[string]any:
		result := make([]any, len(arr))
		for i, m := range arr {
			result[i] = m
		}
		return result, true
	default:
		return nil, false
	}
}

// toString converts any value to a string
func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// FromJSON parses JSON data and returns it as a map
func FromJSON(data json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
