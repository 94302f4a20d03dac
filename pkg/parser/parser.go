// Package parser extracts structured recommendation items out of free-form
// generator text. Parsing is total: it never returns an error, falling back
// to an empty list in the worst case rather than surfacing an exception
// above this boundary.
package parser

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"recoforge/pkg/catalog"
)

const defaultConfidence = 0.7

// Parse extracts recommendations from raw generator output. It tries, in
// order: a bracket-delimited JSON array or object embedded anywhere in the
// text, then a dashed-line fallback. It never panics and never returns an
// error.
func Parse(text string) []catalog.Recommendation {
	text = stripBOM(text)

	if items, ok := parseJSON(text); ok {
		return items
	}
	return parseLines(text)
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, string(rune(0xFEFF)))
}

// parseJSON finds the first '[' and the last ']' in the text and, if they
// appear in that order, attempts to decode the substring as JSON. When no
// such bracket pair exists, the first '{' and the last '}' are tried the
// same way, so a bare object embedded in prose is still found.
func parseJSON(text string) ([]catalog.Recommendation, bool) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < 0 || end < start {
		start = strings.IndexByte(text, '{')
		end = strings.LastIndexByte(text, '}')
		if start < 0 || end < 0 || end < start {
			return nil, false
		}
	}

	var raw any
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}

	elements := normalizeToElements(raw)
	if elements == nil {
		return nil, false
	}

	out := make([]catalog.Recommendation, 0, len(elements))
	for _, el := range elements {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if rec, ok := itemFromObject(obj); ok {
			out = append(out, rec)
		}
	}
	return out, true
}

// normalizeToElements applies the [[x]]-unwrap and single-object-wrap rules,
// returning the flat list of candidate elements.
func normalizeToElements(raw any) []any {
	switch v := raw.(type) {
	case []any:
		if len(v) == 1 {
			if inner, ok := v[0].([]any); ok {
				return inner
			}
		}
		return v
	case map[string]any:
		return []any{v}
	default:
		return nil
	}
}

func itemFromObject(obj map[string]any) (catalog.Recommendation, bool) {
	lower := make(map[string]any, len(obj))
	for k, v := range obj {
		lower[strings.ToLower(k)] = v
	}

	rec := catalog.Recommendation{
		Artist:     stringField(lower, "artist", "Unknown"),
		Album:      stringField(lower, "album", "Unknown"),
		Genre:      stringField(lower, "genre", "Unknown"),
		Reason:     stringField(lower, "reason", ""),
		Confidence: confidenceField(lower["confidence"]),
	}
	return rec, true
}

func stringField(m map[string]any, key, fallback string) string {
	v, ok := m[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}

// confidenceField implements the spec's clamping rules: non-numeric or
// NaN/±Inf maps to the default, negative clamps to 0, above 1 clamps to 1.
func confidenceField(v any) float64 {
	f, ok := asFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return defaultConfidence
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseLines is the line-based fallback used when no parsable JSON
// substring exists: a leading dash bullet ("- ", "– ", "— ") is removed,
// then lines containing a dash-family character are split on the first
// occurrence, with list markers stripped from the left side.
func parseLines(text string) []catalog.Recommendation {
	var out []catalog.Recommendation

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, bullet := range []string{"- ", "– ", "— "} {
			if strings.HasPrefix(trimmed, bullet) {
				line = trimmed[len(bullet):]
				break
			}
		}
		idx, sep := firstDash(line)
		if idx < 0 {
			continue
		}
		left := stripListMarkers(line[:idx])
		right := strings.TrimSpace(line[idx+len(sep):])

		artist := strings.TrimSpace(left)
		album := right
		if artist == "" {
			if album == "" {
				continue
			}
			artist = "Unknown"
		}

		out = append(out, catalog.Recommendation{
			Artist:     artist,
			Album:      album,
			Genre:      "Unknown",
			Reason:     "",
			Confidence: defaultConfidence,
		})
	}

	if out == nil {
		return []catalog.Recommendation{}
	}
	return out
}

func firstDash(line string) (int, string) {
	best := -1
	bestSep := ""
	for _, sep := range []string{"-", "–", "—"} {
		if idx := strings.Index(line, sep); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			bestSep = sep
		}
	}
	return best, bestSep
}

func stripListMarkers(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "•*")
	s = strings.TrimSpace(s)
	// Strip a leading "N." ordinal marker.
	if i := strings.IndexByte(s, '.'); i > 0 {
		if _, err := strconv.Atoi(strings.TrimSpace(s[:i])); err == nil {
			s = strings.TrimSpace(s[i+1:])
		}
	}
	return s
}
