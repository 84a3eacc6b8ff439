package match

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrMalformedContent reports post content the matcher cannot process.
// Callers treat it as "no matches", never as a fatal condition.
var ErrMalformedContent = errors.New("post content is not valid utf-8")

// Match returns the subset of keywords whose text appears in content,
// compared case-insensitively. Containment is plain substring, so "go"
// matches inside "golang". Matched keywords keep their configured spelling
// and come back sorted and deduplicated. Match is a pure function; an empty
// result means no lead action.
func Match(content string, keywords []string) ([]string, error) {
	if !utf8.ValidString(content) {
		return nil, ErrMalformedContent
	}

	lowered := strings.ToLower(content)
	seen := make(map[string]struct{}, len(keywords))
	matched := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		trimmed := strings.TrimSpace(kw)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(trimmed)) {
			seen[trimmed] = struct{}{}
			matched = append(matched, trimmed)
		}
	}
	sort.Strings(matched)
	return matched, nil
}
