// internal/security/scrubber.go
package security

import "regexp"

var (
	// key=value pairs whose key names a credential, e.g. in a URL query
	credentialParamPattern = regexp.MustCompile(`(?i)\b((?:access_|api[_-]?|auth[_-]?)?(?:token|key|secret|password|passwd|pwd))=[^\s&]+`)
	bearerPattern          = regexp.MustCompile(`Bearer\s+\S{20,}`)
	// Long hex strings (32+ chars), likely API keys
	hexKeyPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

// ScrubOutput redacts credentials from text before it is persisted. Launch
// commands and URLs end up in error messages, and error messages end up in
// the analytics store.
func ScrubOutput(output string) string {
	result := credentialParamPattern.ReplaceAllString(output, "$1=[REDACTED]")
	result = bearerPattern.ReplaceAllString(result, "Bearer [REDACTED]")
	result = hexKeyPattern.ReplaceAllString(result, "[REDACTED]")
	return result
}
