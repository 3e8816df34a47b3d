// internal/config/loader_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadGlobal(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
engine:
  poll_interval_seconds: 5
  notifications_enabled: false
  rules_dir: /tmp/rules
logging:
  format: text
  level: debug
status:
  enabled: true
  listen_port: 9090
suggestions:
  window_seconds: 120
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobal(configPath)
	if err != nil {
		t.Fatalf("LoadGlobal failed: %v", err)
	}

	if cfg.Engine.PollInterval() != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", cfg.Engine.PollInterval())
	}
	if cfg.Engine.Notifications() {
		t.Error("expected notifications disabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Status.Addr() != "127.0.0.1:9090" {
		t.Errorf("expected addr 127.0.0.1:9090, got %s", cfg.Status.Addr())
	}
	if cfg.Suggestions.Window() != 2*time.Minute {
		t.Errorf("expected window 2m, got %v", cfg.Suggestions.Window())
	}
	// Untouched sections get defaults
	if cfg.Suggestions.MinCount != 2 {
		t.Errorf("expected default min_count 2, got %d", cfg.Suggestions.MinCount)
	}
	if !cfg.Analytics.IsEnabled() {
		t.Error("expected analytics enabled by default")
	}
	if cfg.Monitoring.Interval() != 30*time.Second {
		t.Errorf("expected default monitoring interval 30s, got %v", cfg.Monitoring.Interval())
	}
}

func TestLoadGlobalOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadGlobalOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadGlobalOrDefault() error = %v", err)
	}
	if cfg.Engine.PollInterval() != 2*time.Second {
		t.Errorf("expected default poll interval 2s, got %v", cfg.Engine.PollInterval())
	}
	if cfg.Status.MaxConcurrent != 1 {
		t.Errorf("expected default max_concurrent 1, got %d", cfg.Status.MaxConcurrent)
	}
}

func TestLoadGlobal_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("engine: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadRuleFile(t *testing.T) {
	dir := t.TempDir()
	rulePath := filepath.Join(dir, "default.yaml")

	content := `
- name: Coding setup
  description: Open the editor when the browser starts
  cooldown: 300
  triggers:
    - app_start: chrome
    - at_time: "09:00"
  actions:
    - wait: 2
    - launch: code
    - notify: Editor ready
- name: Low battery
  enabled: false
  triggers:
    - battery_below: 15
  actions:
    - kill: spotify
`
	if err := os.WriteFile(rulePath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadRuleFile(rulePath)
	if err != nil {
		t.Fatalf("LoadRuleFile failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(docs))
	}

	rule, err := DecodeRule(docs[0])
	if err != nil {
		t.Fatalf("DecodeRule() error = %v", err)
	}
	if rule.Name != "Coding setup" {
		t.Errorf("expected name 'Coding setup', got %q", rule.Name)
	}
	if !rule.IsEnabled() {
		t.Error("expected rule enabled by default")
	}
	if rule.CooldownDuration() != 5*time.Minute {
		t.Errorf("expected cooldown 5m, got %v", rule.CooldownDuration())
	}
	if len(rule.Triggers) != 2 || rule.Triggers[0].Kind != TriggerAppStart || rule.Triggers[0].Value != "chrome" {
		t.Errorf("unexpected triggers: %v", rule.Triggers)
	}
	if rule.Triggers[1].Value != "09:00" {
		t.Errorf("expected at_time 09:00, got %q", rule.Triggers[1].Value)
	}
	if len(rule.Actions) != 3 || rule.Actions[1].Kind != ActionLaunch || rule.Actions[1].Value != "code" {
		t.Errorf("unexpected actions: %v", rule.Actions)
	}
	if secs, err := rule.Actions[0].Seconds(); err != nil || secs != 2 {
		t.Errorf("expected wait 2, got %v (err %v)", secs, err)
	}
	if rule.TriggerType() != "app_start" {
		t.Errorf("expected trigger type app_start, got %q", rule.TriggerType())
	}

	disabled, err := DecodeRule(docs[1])
	if err != nil {
		t.Fatalf("DecodeRule() error = %v", err)
	}
	if disabled.IsEnabled() {
		t.Error("expected second rule disabled")
	}
	if th, err := disabled.Triggers[0].Threshold(); err != nil || th != 15 {
		t.Errorf("expected threshold 15, got %v (err %v)", th, err)
	}
}

func TestDecodeRule_Defaults(t *testing.T) {
	docs := writeAndLoad(t, `
- actions:
    - notify: hello
`)
	rule, err := DecodeRule(docs[0])
	if err != nil {
		t.Fatalf("DecodeRule() error = %v", err)
	}
	if rule.Name != "Unnamed" {
		t.Errorf("expected default name Unnamed, got %q", rule.Name)
	}
	if rule.TriggerType() != "manual" {
		t.Errorf("expected trigger type manual, got %q", rule.TriggerType())
	}
	if rule.CooldownDuration() != 0 {
		t.Errorf("expected zero cooldown, got %v", rule.CooldownDuration())
	}
}

func TestDecodeRule_UnknownKinds(t *testing.T) {
	docs := writeAndLoad(t, `
- name: bad trigger
  triggers:
    - disk_full: /
  actions:
    - notify: x
- name: bad action
  actions:
    - reboot: now
`)
	_, err := DecodeRule(docs[0])
	if !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("expected ErrUnknownTrigger, got %v", err)
	}
	_, err = DecodeRule(docs[1])
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}

	rules, errs := DecodeRules(docs)
	if len(rules) != 0 || len(errs) != 2 {
		t.Errorf("DecodeRules() = %d rules, %d errors; want 0, 2", len(rules), len(errs))
	}
}

func TestLoadRules_Profile(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "default.yaml"), "- name: base\n  actions: [{notify: a}]\n")
	mustWrite(t, filepath.Join(dir, "work.yaml"), "- name: work\n  actions: [{notify: b}]\n")
	if err := os.MkdirAll(filepath.Join(dir, "work"), 0755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "work", "b.yaml"), "- name: work-b\n  actions: [{notify: c}]\n")
	mustWrite(t, filepath.Join(dir, "work", "a.yaml"), "- name: work-a\n  actions: [{notify: d}]\n")
	mustWrite(t, filepath.Join(dir, "home.yaml"), "- name: home\n  actions: [{notify: e}]\n")

	docs, err := LoadRules(dir, "work")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	var names []string
	for _, d := range docs {
		names = append(names, d.Name())
	}
	want := "base,work,work-a,work-b"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("LoadRules() order = %s, want %s", got, want)
	}

	docs, err = LoadRules(dir, "")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected only default.yaml without profile, got %d rules", len(docs))
	}
}

func TestLoadRules_MissingDir(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope"), "")
	if err == nil {
		t.Error("expected error for missing rules directory")
	}
}

func TestLoadRuleFile_NotAList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	mustWrite(t, path, "name: single\n")
	if _, err := LoadRuleFile(path); err == nil {
		t.Error("expected error when the file is not a list")
	}
}

func TestFilterByName(t *testing.T) {
	rules := []Rule{{Name: "a"}, {Name: "b"}, {Name: "a"}}
	if got := FilterByName(rules, "a"); len(got) != 2 {
		t.Errorf("FilterByName(a) = %d rules, want 2", len(got))
	}
	if got := FilterByName(rules, "c"); len(got) != 0 {
		t.Errorf("FilterByName(c) = %d rules, want 0", len(got))
	}
}

func writeAndLoad(t *testing.T, content string) []RuleDoc {
	t.Helper()
	path := filepath.Join(t.TempDir(), "default.yaml")
	mustWrite(t, path, content)
	docs, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("LoadRuleFile() error = %v", err)
	}
	return docs
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
