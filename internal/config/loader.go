// internal/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// RuleDoc is one undecoded rule object from a rule file. Validation works
// on the raw fields so that malformed rules can be reported rather than
// failing the whole file.
type RuleDoc struct {
	Source string
	Index  int
	Fields map[string]any
	node   *yaml.Node
}

// Default returns a configuration with every default applied.
func Default() *Global {
	var cfg Global
	applyGlobalDefaults(&cfg)
	return &cfg
}

// LoadGlobal loads the global configuration from a YAML file
func LoadGlobal(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Global
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyGlobalDefaults(&cfg)
	return &cfg, nil
}

// LoadGlobalOrDefault is LoadGlobal, except a missing file yields defaults.
func LoadGlobalOrDefault(path string) (*Global, error) {
	cfg, err := LoadGlobal(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// RuleFiles returns the rule files for a profile in load order:
// default.yaml, then <profile>.yaml, then <profile>/*.yaml sorted by name.
func RuleFiles(dir, profile string) []string {
	var files []string
	if p := filepath.Join(dir, "default.yaml"); fileExists(p) {
		files = append(files, p)
	}
	if profile == "" {
		return files
	}
	if p := filepath.Join(dir, profile+".yaml"); fileExists(p) {
		files = append(files, p)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, profile, "*.yaml"))
	sort.Strings(matches)
	return append(files, matches...)
}

// LoadRuleFile reads a YAML list of rule objects.
func LoadRuleFile(path string) ([]RuleDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	list := root.Content[0]
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("parsing rule file: top level must be a list of rules")
	}

	docs := make([]RuleDoc, 0, len(list.Content))
	for i, n := range list.Content {
		var fields map[string]any
		if err := n.Decode(&fields); err != nil {
			return nil, fmt.Errorf("parsing rule %d in %s: %w", i+1, path, err)
		}
		docs = append(docs, RuleDoc{Source: path, Index: i, Fields: fields, node: n})
	}
	return docs, nil
}

// LoadRules loads all rule documents for a profile from a rules directory.
func LoadRules(dir, profile string) ([]RuleDoc, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("reading rules directory: %w", err)
	}

	var docs []RuleDoc
	for _, f := range RuleFiles(dir, profile) {
		d, err := LoadRuleFile(f)
		if err != nil {
			return nil, fmt.Errorf("loading rules %s: %w", filepath.Base(f), err)
		}
		docs = append(docs, d...)
	}
	return docs, nil
}

// Name returns the rule's name or "Unnamed".
func (d RuleDoc) Name() string {
	if n, ok := d.Fields["name"].(string); ok && n != "" {
		return n
	}
	return "Unnamed"
}

// DecodeRule converts a rule document into its typed form.
func DecodeRule(doc RuleDoc) (Rule, error) {
	var r Rule
	if doc.node == nil {
		return r, fmt.Errorf("rule %q has no source node", doc.Name())
	}
	if err := doc.node.Decode(&r); err != nil {
		return r, fmt.Errorf("decoding rule %q: %w", doc.Name(), err)
	}
	if r.Name == "" {
		r.Name = "Unnamed"
	}
	if r.Cooldown < 0 {
		return r, fmt.Errorf("decoding rule %q: cooldown cannot be negative", r.Name)
	}
	return r, nil
}

// DecodeRules decodes every document, returning the rules that decoded and
// one error per rule that did not.
func DecodeRules(docs []RuleDoc) ([]Rule, []error) {
	var rules []Rule
	var errs []error
	for _, d := range docs {
		r, err := DecodeRule(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, errs
}

// FilterByName keeps only rules with the given name.
func FilterByName(rules []Rule, name string) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func applyGlobalDefaults(cfg *Global) {
	if cfg.Engine.PollIntervalSeconds <= 0 {
		cfg.Engine.PollIntervalSeconds = 2
	}
	if cfg.Engine.RulesDir == "" {
		cfg.Engine.RulesDir = filepath.Join(dataDir(), "rules")
	}
	if cfg.Engine.EventLog == "" {
		cfg.Engine.EventLog = filepath.Join(dataDir(), "appflow.log")
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Analytics.Path == "" {
		cfg.Analytics.Path = filepath.Join(dataDir(), "analytics.db")
	}
	if cfg.Analytics.RetentionDays <= 0 {
		cfg.Analytics.RetentionDays = 90
	}
	if cfg.Analytics.CleanupSchedule == "" {
		cfg.Analytics.CleanupSchedule = "0 0 3 * * *"
	}
	if cfg.Monitoring.IntervalSeconds <= 0 {
		cfg.Monitoring.IntervalSeconds = 30
	}
	if cfg.Status.ListenAddress == "" {
		cfg.Status.ListenAddress = "127.0.0.1"
	}
	if cfg.Status.ListenPort == 0 {
		cfg.Status.ListenPort = 8080
	}
	if cfg.Status.MaxConcurrent <= 0 {
		cfg.Status.MaxConcurrent = 1
	}
	if cfg.Status.RequestsPerMinute <= 0 {
		cfg.Status.RequestsPerMinute = 120
	}
	if cfg.Suggestions.WindowSeconds <= 0 {
		cfg.Suggestions.WindowSeconds = 300
	}
	if cfg.Suggestions.MinCount <= 0 {
		cfg.Suggestions.MinCount = 2
	}
	if cfg.Suggestions.Schedule == "" {
		cfg.Suggestions.Schedule = "0 0 * * * *"
	}
}

// DefaultConfigPath is where the binaries look for config.yaml when no
// path is given.
func DefaultConfigPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

// dataDir is the per-user state directory, falling back to the working
// directory when no home is available.
func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "appflow")
	}
	return "."
}
