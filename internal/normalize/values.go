package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

// lookup resolves a dotted path such as "live_fields.is_live" against a
// decoded JSON object.
func lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// firstString returns the first candidate path holding a non-empty string
// value. Values equal to skip are treated as absent.
func firstString(fields map[string]any, paths []string, skip string) string {
	for _, p := range paths {
		v, ok := lookup(fields, p)
		if !ok {
			continue
		}
		s := stringify(v)
		if s == "" || (skip != "" && s == skip) {
			continue
		}
		return s
	}
	return ""
}

// firstBool returns the first candidate path holding a boolean-ish value.
func firstBool(fields map[string]any, paths []string) bool {
	for _, p := range paths {
		v, ok := lookup(fields, p)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b
			}
		case json.Number:
			return t.String() != "0"
		case float64:
			return t != 0
		}
	}
	return false
}

// stringify renders a scalar JSON value as a trimmed display string. Objects
// and arrays render as empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// joinNonEmpty joins the non-empty parts with a single space.
func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
