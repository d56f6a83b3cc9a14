// Package strings provides string manipulation utilities.
package strings

import "strings"

// DedupeAndTrimLower lowercases and trims each element, dropping duplicates
// and empties. Order is preserved. Used to normalise data-category lists
// before they are parsed into closed enumerations.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		normalised := strings.ToLower(strings.TrimSpace(v))
		if normalised == "" {
			continue
		}
		if _, ok := seen[normalised]; !ok {
			seen[normalised] = struct{}{}
			result = append(result, normalised)
		}
	}

	return result
}
