package provider

import (
	"github.com/oliveagle/jsonpath"
)

// Provider responses are heterogeneous and deeply nested; field extraction
// goes through JSONPath lookups against the decoded document rather than a
// full wire struct per provider.

// lookupString extracts a string at the given JSONPath, or "" when the path
// is absent or not a string.
func lookupString(doc interface{}, path string) string {
	value, err := jsonpath.JsonPathLookup(doc, path)
	if err != nil {
		return ""
	}
	s, _ := value.(string)
	return s
}

// lookupInt extracts a numeric value at the given JSONPath as an int, or 0
// when absent. JSON numbers decode as float64.
func lookupInt(doc interface{}, path string) int {
	value, err := jsonpath.JsonPathLookup(doc, path)
	if err != nil {
		return 0
	}
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// lookupSlice extracts a JSON array at the given JSONPath, or nil
func lookupSlice(doc interface{}, path string) []interface{} {
	value, err := jsonpath.JsonPathLookup(doc, path)
	if err != nil {
		return nil
	}
	s, _ := value.([]interface{})
	return s
}

// lookupStrings extracts a JSON array of strings, capped at limit entries
func lookupStrings(doc interface{}, path string, limit int) []string {
	raw := lookupSlice(doc, path)
	if len(raw) == 0 {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
