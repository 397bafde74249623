package normalize

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and removes combining marks, so "Mã khách
// hàng" and "Ma khach hang" normalize to the same key.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Header canonicalizes a raw column caption into a stable snake_case key:
// diacritics stripped, whitespace collapsed to single underscores, anything
// outside word characters dropped, lowercased. Empty input stays empty.
// Idempotent: Header(Header(s)) == Header(s).
func Header(s string) string {
	if s == "" {
		return ""
	}

	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	// U+0111/U+0110 carry no combining mark, NFD leaves them alone.
	out = strings.ReplaceAll(out, "đ", "d")
	out = strings.ReplaceAll(out, "Đ", "D")

	var b strings.Builder
	b.Grow(len(out))
	lastSpace := false
	for _, r := range strings.TrimSpace(out) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune('_')
				lastSpace = true
			}
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		}
	}
	return b.String()
}

// CamelCase derives a camel-case field name from a snake_case or spaced key.
// Used for workbook columns that are not in the synonym table.
func CamelCase(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	upperNext := false
	for _, r := range s {
		if r == '_' || unicode.IsSpace(r) {
			upperNext = true
			continue
		}
		if upperNext && b.Len() > 0 {
			b.WriteRune(unicode.ToUpper(r))
		} else if b.Len() == 0 {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
		upperNext = false
	}
	return b.String()
}

// Relation is the uniform shape for a related entity reference.
type Relation struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

// MapRelation normalizes the shapes a relation field arrives in: a
// two-element [id, display] pair, a record exposing id and a display name,
// or a bare scalar treated as a name. Absent values (nil, false, empty
// string) map to nil. The shape is resolved once here; callers only ever
// see *Relation.
func MapRelation(v any) *Relation {
	switch rel := v.(type) {
	case nil:
		return nil
	case bool:
		// Odoo sends false for an unset many2one.
		if !rel {
			return nil
		}
		return &Relation{Name: strPtr("true")}
	case string:
		if rel == "" {
			return nil
		}
		return &Relation{Name: strPtr(rel)}
	case []any:
		if len(rel) == 0 {
			return nil
		}
		out := &Relation{}
		if id, ok := toInt64(rel[0]); ok {
			out.ID = &id
		}
		if len(rel) > 1 {
			if name, ok := rel[1].(string); ok {
				out.Name = &name
			}
		}
		if out.ID == nil && out.Name == nil {
			return nil
		}
		return out
	case map[string]any:
		out := &Relation{}
		if id, ok := toInt64(rel["id"]); ok {
			out.ID = &id
		}
		for _, key := range []string{"display_name", "name"} {
			if name, ok := rel[key].(string); ok && name != "" {
				out.Name = &name
				break
			}
		}
		return out
	default:
		return &Relation{Name: strPtr(fmt.Sprint(rel))}
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func strPtr(s string) *string { return &s }
