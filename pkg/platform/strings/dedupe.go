// Package strings provides string list helpers for configuration parsing.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every value and drops empty and repeated ones, keeping
// first-seen order.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitList parses a comma-separated setting such as CORS_ALLOWED_ORIGINS.
//
//	SplitList(" http://a, http://b ,,http://a") // [http://a http://b]
func SplitList(raw string) []string {
	return DedupeAndTrim(strings.Split(raw, ","))
}
