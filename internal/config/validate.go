// internal/config/validate.go
package config

import (
	"fmt"
	"strconv"
	"time"
)

// Issue is a single validation problem with a rule document.
type Issue struct {
	Rule    string
	Source  string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Rule, i.Message)
}

// Validate checks rule documents for configuration errors. It never fails;
// problems are returned as issues and the caller decides what to do.
func Validate(docs []RuleDoc) []Issue {
	var issues []Issue
	for i, d := range docs {
		id := fmt.Sprintf("Rule %d", i+1)
		if name, ok := d.Fields["name"].(string); ok && name != "" {
			id = fmt.Sprintf("Rule '%s'", name)
		}
		add := func(format string, args ...any) {
			issues = append(issues, Issue{Rule: id, Source: d.Source, Message: fmt.Sprintf(format, args...)})
		}

		if _, ok := d.Fields["name"]; !ok {
			add("Missing 'name' field")
		}

		if raw, ok := d.Fields["triggers"]; ok {
			list, isList := raw.([]any)
			switch {
			case !isList:
				add("'triggers' must be a list")
			case len(list) == 0:
				add("Empty triggers list")
			default:
				for j, t := range list {
					for _, msg := range validateTrigger(t) {
						add("trigger %d: %s", j+1, msg)
					}
				}
			}
		}

		if raw, ok := d.Fields["actions"]; ok {
			list, isList := raw.([]any)
			switch {
			case !isList:
				add("'actions' must be a list")
			case len(list) == 0:
				add("Empty actions list")
			default:
				for j, a := range list {
					for _, msg := range validateAction(a) {
						add("action %d: %s", j+1, msg)
					}
				}
			}
		}

		if raw, ok := d.Fields["cooldown"]; ok {
			c, err := toFloat(raw)
			switch {
			case err != nil:
				add("Invalid cooldown value")
			case c < 0:
				add("Cooldown cannot be negative")
			}
		}

		if raw, ok := d.Fields["enabled"]; ok {
			if _, isBool := raw.(bool); !isBool {
				add("'enabled' must be true or false")
			}
		}
	}
	return issues
}

func validateTrigger(raw any) []string {
	key, val, msg := entry(raw)
	if msg != "" {
		return []string{msg}
	}
	kind := TriggerKind(key)
	if !knownTrigger(kind) {
		return []string{fmt.Sprintf("unknown trigger kind %q", key)}
	}
	switch {
	case kind == TriggerAtTime:
		s := fmt.Sprint(val)
		if _, err := time.Parse("15:04", s); err != nil || len(s) != 5 {
			return []string{fmt.Sprintf("at_time %q must be HH:MM", s)}
		}
	case kind.Numeric():
		if _, err := toFloat(val); err != nil {
			return []string{fmt.Sprintf("%s threshold %v is not a number", kind, val)}
		}
	default:
		if s, ok := val.(string); !ok || s == "" {
			return []string{fmt.Sprintf("%s needs a process name", kind)}
		}
	}
	return nil
}

func validateAction(raw any) []string {
	key, val, msg := entry(raw)
	if msg != "" {
		return []string{msg}
	}
	kind := ActionKind(key)
	if !knownAction(kind) {
		return []string{fmt.Sprintf("unknown action kind %q", key)}
	}
	if kind == ActionWait {
		secs, err := toFloat(val)
		if err != nil {
			return []string{fmt.Sprintf("wait %v is not a number of seconds", val)}
		}
		if secs < 0 {
			return []string{"wait cannot be negative"}
		}
		return nil
	}
	if s := fmt.Sprint(val); s == "" || val == nil {
		return []string{fmt.Sprintf("%s needs a value", kind)}
	}
	return nil
}

func entry(raw any) (string, any, string) {
	m, ok := raw.(map[string]any)
	if !ok {
		return "", nil, "must be a single-key map"
	}
	if len(m) != 1 {
		return "", nil, fmt.Sprintf("must have exactly one key, got %d", len(m))
	}
	for k, v := range m {
		return k, v, ""
	}
	return "", nil, "empty entry"
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
