package workflow

import (
	"regexp"
	"strings"
)

// quoted matches the first double-quoted segment. The lazy group leaves a
// trailing period inside the quotes out of the capture.
var quoted = regexp.MustCompile(`"(.*?)\.?"`)

// ExtractQuoted returns the first double-quoted segment of text. It reports
// false when there is none or when the segment is blank.
func ExtractQuoted(text string) (string, bool) {
	m := quoted.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	s := strings.TrimSpace(m[1])
	if s == "" {
		return "", false
	}
	return s, true
}

// ScrubEssay removes every literal occurrence of saying from essay, then
// every double quote.
func ScrubEssay(essay, saying string) string {
	if saying != "" {
		essay = strings.ReplaceAll(essay, saying, "")
	}
	return strings.ReplaceAll(essay, `"`, "")
}

// sameSaying compares a guess with the saying, ignoring case and
// surrounding space.
func sameSaying(guess, saying string) bool {
	return strings.EqualFold(strings.TrimSpace(guess), strings.TrimSpace(saying))
}
