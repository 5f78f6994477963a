// Package textutil has small string-normalisation helpers shared by the
// catalog write paths.
package textutil

import "strings"

// NormalizeStringMap trims every key and value and drops entries whose key
// trims to empty. Returns nil when nothing survives, so variant options
// serialise as absent rather than an empty map.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
