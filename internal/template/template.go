// internal/template/template.go
package template

import (
	"fmt"
	"regexp"
	"time"
)

var templateVar = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Expand replaces {{variable}} placeholders with values from data.
// Unknown variables are left in place.
func Expand(tmpl string, data map[string]any) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		varName := templateVar.FindStringSubmatch(match)[1]

		if val, ok := data[varName]; ok {
			return fmt.Sprintf("%v", val)
		}
		return match
	})
}

// HasVars reports whether s contains any placeholder.
func HasVars(s string) bool {
	return templateVar.MatchString(s)
}

// ActionVars is the variable set available to action arguments.
func ActionVars(ruleName, triggerType string, now time.Time) map[string]any {
	return map[string]any{
		"rule_name":    ruleName,
		"trigger_type": triggerType,
		"date":         now.Format("2006-01-02"),
		"time":         now.Format("15:04"),
	}
}
