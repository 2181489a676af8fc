package batch

import (
	"sort"
	"strings"
)

// NormalizeTags applies add/remove to an existing tag set. Tags are trimmed
// of whitespace, empty strings are silently ignored, and the result is a
// deduplicated sorted set.
func NormalizeTags(existing, add, remove []string) []string {
	set := make(map[string]bool, len(existing)+len(add))
	for _, t := range existing {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = true
		}
	}
	for _, t := range add {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = true
		}
	}
	for _, t := range remove {
		if t = strings.TrimSpace(t); t != "" {
			delete(set, t)
		}
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
