package project

import (
	"strings"
)

// CheckRequiredFields returns the dotted field paths that do not resolve to
// a present key in raw. Each path is walked one mapping level per segment;
// the first missing segment at any depth fails the field.
func CheckRequiredFields(raw map[string]any, paths []string) []string {
	var missing []string
	for _, path := range paths {
		if !hasField(raw, path) {
			missing = append(missing, path)
		}
	}
	return missing
}

func hasField(raw map[string]any, path string) bool {
	var current any = raw
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = m[key]
		if !ok {
			return false
		}
	}
	return true
}
