// internal/security/sanitizer.go
package security

import (
	"strings"
	"unicode/utf8"
)

// MaxValueLength bounds an expanded action argument in bytes.
const MaxValueLength = 1024

// SanitizeValue makes an action argument safe to hand to the desktop and to
// the event log:
//   - line breaks and tabs become spaces, so an event stays on one line
//   - other control characters are dropped
//   - the result is truncated to MaxValueLength bytes on a rune boundary
func SanitizeValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	result := b.String()

	if len(result) > MaxValueLength {
		cut := MaxValueLength
		for cut > 0 && !utf8.RuneStart(result[cut]) {
			cut--
		}
		result = result[:cut]
	}
	return result
}
