package lookup

import (
	"regexp"
	"strings"
)

var digitRunPattern = regexp.MustCompile(`\d+`)

// Normalize reduces raw user input to a canonical search key: all digit
// characters in order, with leading zeros stripped. Everything else
// (letters, punctuation, whitespace) is discarded. Returns "" when the
// input carries no usable digits.
func Normalize(raw string) string {
	var digits strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	return strings.TrimLeft(digits.String(), "0")
}

// ExtractCandidate returns the first run of digits in text that is at least
// minDigits long, or "" when none qualifies. Stored identifiers are free-form
// (phone numbers, codes with prefixes), so a minimum length keeps incidental
// small numbers in chat text from triggering lookups.
func ExtractCandidate(text string, minDigits int) string {
	if minDigits < 1 {
		minDigits = 1
	}
	for _, match := range digitRunPattern.FindAllString(text, -1) {
		if len(match) >= minDigits {
			return match
		}
	}
	return ""
}
