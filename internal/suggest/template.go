// internal/suggest/template.go
package suggest

import (
	"fmt"

	"github.com/colebrumley/appflow/internal/config"
	"gopkg.in/yaml.v3"
)

// templateCooldown is the cooldown, in seconds, of generated rules.
const templateCooldown = 300

// RuleTemplate builds a rule that launches second a moment after first
// starts.
func RuleTemplate(first, second string) config.Rule {
	enabled := true
	return config.Rule{
		Name:     fmt.Sprintf("Auto-launch %s after %s", second, first),
		Enabled:  &enabled,
		Cooldown: templateCooldown,
		Triggers: []config.Trigger{{Kind: config.TriggerAppStart, Value: first}},
		Actions: []config.Action{
			{Kind: config.ActionWait, Value: "2"},
			{Kind: config.ActionLaunch, Value: second},
			{Kind: config.ActionNotify, Value: second + " launched automatically"},
		},
	}
}

// RuleTemplates builds one rule per sequential pair.
func RuleTemplates(pairs []PairCount) []config.Rule {
	rules := make([]config.Rule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, RuleTemplate(p.First, p.Second))
	}
	return rules
}

// MarshalRules renders rules as a rule file (a YAML list).
func MarshalRules(rules []config.Rule) ([]byte, error) {
	out, err := yaml.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("encoding rule templates: %w", err)
	}
	return out, nil
}
