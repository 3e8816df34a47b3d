// internal/config/types.go
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Global configuration loaded from config.yaml
type Global struct {
	Engine      EngineConfig      `yaml:"engine"`
	Logging     LoggingConfig     `yaml:"logging"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Status      StatusConfig      `yaml:"status"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
}

type EngineConfig struct {
	PollIntervalSeconds  float64 `yaml:"poll_interval_seconds"`
	RunOnce              bool    `yaml:"run_once"`
	NotificationsEnabled *bool   `yaml:"notifications_enabled"` // nil = default (true)
	EventLog             string  `yaml:"event_log"`
	RulesDir             string  `yaml:"rules_dir"`
	Profile              string  `yaml:"profile"`
}

type LoggingConfig struct {
	Format    string `yaml:"format"`
	Level     string `yaml:"level"`
	File      string `yaml:"file"` // empty = stdout
	MaxSizeMB int    `yaml:"max_size_mb"`
}

type AnalyticsConfig struct {
	Enabled         *bool  `yaml:"enabled"` // nil = default (true)
	Path            string `yaml:"path"`
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

type MonitoringConfig struct {
	Enabled         *bool   `yaml:"enabled"` // nil = default (true)
	IntervalSeconds float64 `yaml:"interval_seconds"`
}

type StatusConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ListenAddress     string `yaml:"listen_address"`
	ListenPort        int    `yaml:"listen_port"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type SuggestionsConfig struct {
	WindowSeconds int    `yaml:"window_seconds"`
	MinCount      int    `yaml:"min_count"`
	Auto          bool   `yaml:"auto"`
	Schedule      string `yaml:"schedule"`
}

// PollInterval returns the engine poll interval as a duration.
func (e EngineConfig) PollInterval() time.Duration {
	return secondsToDuration(e.PollIntervalSeconds)
}

// Notifications reports whether notify actions reach the desktop.
func (e EngineConfig) Notifications() bool {
	return e.NotificationsEnabled == nil || *e.NotificationsEnabled
}

func (a AnalyticsConfig) IsEnabled() bool  { return a.Enabled == nil || *a.Enabled }
func (m MonitoringConfig) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// Interval returns the sampling interval as a duration.
func (m MonitoringConfig) Interval() time.Duration {
	return secondsToDuration(m.IntervalSeconds)
}

// Addr returns host:port for the status listener.
func (s StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.ListenAddress, s.ListenPort)
}

// Window returns the sequence mining window as a duration.
func (s SuggestionsConfig) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

// TriggerKind names one member of the closed trigger set.
type TriggerKind string

const (
	TriggerAppStart     TriggerKind = "app_start"
	TriggerAppExit      TriggerKind = "app_exit"
	TriggerAtTime       TriggerKind = "at_time"
	TriggerBatteryBelow TriggerKind = "battery_below"
	TriggerCPUAbove     TriggerKind = "cpu_above"
	TriggerNetworkAbove TriggerKind = "network_above"
)

// TriggerKinds lists every supported trigger kind.
var TriggerKinds = []TriggerKind{
	TriggerAppStart, TriggerAppExit, TriggerAtTime,
	TriggerBatteryBelow, TriggerCPUAbove, TriggerNetworkAbove,
}

// Numeric reports whether the trigger's argument is a threshold.
func (k TriggerKind) Numeric() bool {
	switch k {
	case TriggerBatteryBelow, TriggerCPUAbove, TriggerNetworkAbove:
		return true
	}
	return false
}

// ActionKind names one member of the closed action set.
type ActionKind string

const (
	ActionLaunch  ActionKind = "launch"
	ActionKill    ActionKind = "kill"
	ActionWait    ActionKind = "wait"
	ActionNotify  ActionKind = "notify"
	ActionOpenURL ActionKind = "open_url"
)

// ActionKinds lists every supported action kind.
var ActionKinds = []ActionKind{ActionLaunch, ActionKill, ActionWait, ActionNotify, ActionOpenURL}

var (
	ErrUnknownTrigger = errors.New("unknown trigger kind")
	ErrUnknownAction  = errors.New("unknown action kind")
)

// Rule is the declarative form of an automation rule.
type Rule struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Enabled     *bool     `yaml:"enabled,omitempty"`
	Cooldown    float64   `yaml:"cooldown,omitempty"` // seconds
	Triggers    []Trigger `yaml:"triggers"`
	Actions     []Action  `yaml:"actions"`
}

// IsEnabled defaults to true when the field is absent.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// CooldownDuration converts the cooldown seconds to a duration.
func (r Rule) CooldownDuration() time.Duration {
	return secondsToDuration(r.Cooldown)
}

// TriggerType is the analytics label for the rule: the first trigger's
// kind, or "manual" when there are no triggers.
func (r Rule) TriggerType() string {
	if len(r.Triggers) == 0 {
		return "manual"
	}
	return string(r.Triggers[0].Kind)
}

// Trigger is a single-key map in YAML, e.g. `app_start: chrome`.
type Trigger struct {
	Kind  TriggerKind
	Value string
}

// Threshold parses the value as a number for numeric trigger kinds.
func (t Trigger) Threshold() (float64, error) {
	return strconv.ParseFloat(t.Value, 64)
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s: %s", t.Kind, t.Value)
}

func (t *Trigger) UnmarshalYAML(node *yaml.Node) error {
	key, val, err := singleKey(node)
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	kind := TriggerKind(key)
	if !knownTrigger(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, key)
	}
	t.Kind = kind
	t.Value = val
	return nil
}

func (t Trigger) MarshalYAML() (any, error) {
	return map[string]any{string(t.Kind): scalarValue(t.Value)}, nil
}

// Action is a single-key map in YAML, e.g. `launch: code`.
type Action struct {
	Kind  ActionKind
	Value string
}

// Seconds parses the value of a wait action.
func (a Action) Seconds() (float64, error) {
	return strconv.ParseFloat(a.Value, 64)
}

func (a Action) String() string {
	return fmt.Sprintf("{%s: %s}", a.Kind, a.Value)
}

func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	key, val, err := singleKey(node)
	if err != nil {
		return fmt.Errorf("action: %w", err)
	}
	kind := ActionKind(key)
	if !knownAction(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, key)
	}
	a.Kind = kind
	a.Value = val
	return nil
}

func (a Action) MarshalYAML() (any, error) {
	return map[string]any{string(a.Kind): scalarValue(a.Value)}, nil
}

func singleKey(node *yaml.Node) (string, string, error) {
	if node.Kind != yaml.MappingNode {
		return "", "", fmt.Errorf("expected a single-key map, got %s", nodeKindName(node.Kind))
	}
	if len(node.Content) != 2 {
		return "", "", fmt.Errorf("expected exactly one key, got %d", len(node.Content)/2)
	}
	k, v := node.Content[0], node.Content[1]
	if v.Kind != yaml.ScalarNode {
		return "", "", fmt.Errorf("value of %q must be a scalar", k.Value)
	}
	return k.Value, v.Value, nil
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "list"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.MappingNode:
		return "map"
	default:
		return "node"
	}
}

// scalarValue keeps numbers numeric when re-encoding rule templates.
func scalarValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	}
	return s
}

func knownTrigger(k TriggerKind) bool {
	for _, known := range TriggerKinds {
		if k == known {
			return true
		}
	}
	return false
}

func knownAction(k ActionKind) bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
