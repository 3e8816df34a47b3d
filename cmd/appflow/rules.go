// cmd/appflow/rules.go
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/daemon"
	"github.com/colebrumley/appflow/internal/security"
	"github.com/colebrumley/appflow/internal/suggest"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// backupStamp prefixes backed up rule files.
const backupStamp = "20060102_150405"

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file and rules directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return initLayout(cmd.OutOrStdout(), c.configPath, cfg)
		},
	}
}

// initLayout creates the directories and starter files. Existing files
// are left alone.
func initLayout(out io.Writer, configPath string, cfg *config.Global) error {
	rulesDir := cfg.Engine.RulesDir
	for _, dir := range []string{filepath.Dir(configPath), rulesDir, filepath.Dir(cfg.Engine.EventLog)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
		fmt.Fprintf(out, "Created %s\n", dir)
	}

	// Rules launch commands; keep them private to the user.
	if err := os.Chmod(rulesDir, 0700); err != nil {
		return fmt.Errorf("setting rules directory permissions: %w", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(starterConfig(cfg)), 0644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Fprintf(out, "Created %s\n", configPath)
	}

	rulesPath := filepath.Join(rulesDir, "default.yaml")
	if _, err := os.Stat(rulesPath); os.IsNotExist(err) {
		example := suggest.RuleTemplate("Safari", "Notes")
		disabled := false
		example.Enabled = &disabled
		example.Description = "Example rule; enable it or replace it with your own"
		data, err := suggest.MarshalRules([]config.Rule{example})
		if err != nil {
			return err
		}
		if err := os.WriteFile(rulesPath, data, 0600); err != nil {
			return fmt.Errorf("writing example rules: %w", err)
		}
		fmt.Fprintf(out, "Created %s\n", rulesPath)
	}

	fmt.Fprintln(out, "\nInitialization complete. Add rules to:", rulesDir)
	return nil
}

func starterConfig(cfg *config.Global) string {
	return fmt.Sprintf(`engine:
  poll_interval_seconds: %g
  notifications_enabled: true
  rules_dir: %q
  event_log: %q
logging:
  format: %s
  level: %s
analytics:
  enabled: true
  path: %q
  retention_days: %d
monitoring:
  enabled: true
  interval_seconds: %g
status:
  enabled: false
  listen_address: %s
  listen_port: %d
suggestions:
  window_seconds: %d
  min_count: %d
`,
		cfg.Engine.PollIntervalSeconds, cfg.Engine.RulesDir, cfg.Engine.EventLog,
		cfg.Logging.Format, cfg.Logging.Level,
		cfg.Analytics.Path, cfg.Analytics.RetentionDays,
		cfg.Monitoring.IntervalSeconds,
		cfg.Status.ListenAddress, cfg.Status.ListenPort,
		cfg.Suggestions.WindowSeconds, cfg.Suggestions.MinCount)
}

func (c *cli) daemonOptions() daemon.Options {
	return daemon.Options{
		ConfigPath: c.configPath,
		RulesDir:   c.rulesDir,
		Profile:    c.profile,
		LogFile:    os.Getenv("APPFLOW_LOG"),
	}
}

func (c *cli) startCmd() *cobra.Command {
	var (
		once     bool
		interval float64
		eventLog string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the rule engine in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.daemonOptions()
			opts.RunOnce = once
			opts.PollInterval = interval
			opts.EventLog = eventLog
			return daemon.New(opts).Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&once, "once", "1", false, "check rules once and exit")
	cmd.Flags().Float64VarP(&interval, "interval", "i", 0, "polling interval in seconds (overrides engine.poll_interval_seconds)")
	cmd.Flags().StringVar(&eventLog, "log", "", "write the event log to FILE")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run <rule>",
		Short: "Run a single rule",
		Long:  "Run the engine once with only the named rule loaded. With --force the rule's actions run immediately, ignoring its triggers and cooldown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.daemonOptions()
			opts.RuleName = args[0]
			opts.RunOnce = true
			d := daemon.New(opts)

			if !force {
				return d.Run(cmd.Context())
			}

			res, err := d.RunRule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rule %q finished: %s, %d actions in %s\n",
				args[0], res.State, res.Actions, res.Duration.Round(time.Millisecond))
			if !res.Success() {
				fmt.Fprintf(out, "%d action(s) failed: %s\n", res.Failed, res.Error)
				return errSilent
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "execute now, bypassing triggers and cooldown")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the loaded rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			docs, err := config.LoadRules(cfg.Engine.RulesDir, cfg.Engine.Profile)
			if err != nil {
				return err
			}
			rules, errs := config.DecodeRules(docs)
			for _, err := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping invalid rule: %v\n", err)
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rules found")
				return nil
			}
			renderRules(cmd.OutOrStdout(), rules)
			return nil
		},
	}
}

func renderRules(out io.Writer, rules []config.Rule) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Enabled", "Cooldown", "Triggers", "Actions", "Description"})
	for _, r := range rules {
		t.AppendRow(table.Row{
			r.Name,
			yesNo(r.IsEnabled()),
			r.CooldownDuration(),
			joinStrings(r.Triggers),
			joinStrings(r.Actions),
			truncate(r.Description, 40),
		})
	}
	t.Render()
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the rule files for problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return validateRules(cmd.OutOrStdout(), cfg.Engine.RulesDir, cfg.Engine.Profile)
		},
	}
}

// validateRules prints every problem found and fails when there is one.
func validateRules(out io.Writer, dir, profile string) error {
	docs, err := config.LoadRules(dir, profile)
	if err != nil {
		return err
	}

	var problems []string
	if err := security.ValidateRulesDir(dir); err != nil {
		problems = append(problems, err.Error())
	}
	for _, issue := range config.Validate(docs) {
		problems = append(problems, issue.String())
	}

	if len(problems) == 0 {
		fmt.Fprintf(out, "Validated %d rules, no issues found\n", len(docs))
		return nil
	}
	fmt.Fprintf(out, "Found %d issue(s) in %d rules:\n", len(problems), len(docs))
	for _, p := range problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return errSilent
}

func (c *cli) backupRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup-rules <dir>",
		Short: "Copy every rule file into dir with a timestamp prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			files, err := backupRules(cfg.Engine.RulesDir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d rule file(s) to %s\n", len(files), args[0])
			return nil
		},
	}
}

// backupRules copies the top-level *.yaml files of src into dst as
// <YYYYMMDD_HHMMSS>_<name> and returns the written paths.
func backupRules(src, dst string, now time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(src, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing rule files: %w", err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	prefix := now.Format(backupStamp)
	var written []string
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return written, fmt.Errorf("reading %s: %w", path, err)
		}
		target := filepath.Join(dst, prefix+"_"+filepath.Base(path))
		if err := os.WriteFile(target, data, 0600); err != nil {
			return written, fmt.Errorf("writing %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func joinStrings[T fmt.Stringer](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
