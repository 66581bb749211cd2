package util

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// Normalize is the only admissible key-equality transform: lower-case,
// trim, collapse internal whitespace runs to one space.
func Normalize(input string) string {
	s := strings.ToLower(input)
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func StripSpaces(input string) string {
	return reSpaces.ReplaceAllString(input, "")
}

// Tokenize splits a normalized string into words longer than two runes;
// shorter words carry no signal for name overlap.
func Tokenize(input string) []string {
	parts := strings.Split(Normalize(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) > 2 {
			out = append(out, p)
		}
	}
	return out
}
