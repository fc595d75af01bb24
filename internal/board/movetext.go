package board

import (
	"regexp"
	"strings"
)

var (
	commentRegex    = regexp.MustCompile(`\{[^}]*\}|;[^\n]*`)
	moveNumberRegex = regexp.MustCompile(`\d+\.+`)
)

// SplitMovetext turns PGN movetext like "1. e4 e5 2. Nf3 {book} Nc6 1-0"
// into SAN tokens. Comments, NAGs, move numbers and result markers are
// dropped. Variations are not supported.
func SplitMovetext(movetext string) []string {
	cleaned := commentRegex.ReplaceAllString(movetext, " ")
	cleaned = moveNumberRegex.ReplaceAllString(cleaned, " ")
	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		switch {
		case f[0] == '$':
		case f == "1-0", f == "0-1", f == "1/2-1/2", f == "*":
		default:
			out = append(out, f)
		}
	}
	return out
}
