package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims whitespace and drops control characters other than
// newline and tab. It never shortens legitimate text; length limits belong to
// the validation that follows.
func SanitizeString(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(cleaned)
}
