// cmd/appflow/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/state"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// errSilent fails the command without printing anything more; the command
// has already reported the problem.
var errSilent = errors.New("")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// cli holds the flags shared by every subcommand.
type cli struct {
	configPath string
	rulesDir   string
	profile    string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "appflow",
		Short:         "Condition-driven app automation",
		Long:          "appflow watches running apps, the clock, battery, CPU and network, and runs the actions of every rule whose triggers all hold.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", envOr("APPFLOW_CONFIG", config.DefaultConfigPath()), "config file")
	root.PersistentFlags().StringVarP(&c.rulesDir, "rules-dir", "d", os.Getenv("APPFLOW_RULES_DIR"), "rules directory (overrides engine.rules_dir)")
	root.PersistentFlags().StringVarP(&c.profile, "profile", "p", "", "also load <profile>.yaml and <profile>/*.yaml")

	root.AddCommand(
		c.initCmd(),
		c.startCmd(),
		c.listCmd(),
		c.validateCmd(),
		c.runCmd(),
		c.backupRulesCmd(),
		c.statusCmd(),
		c.analyticsCmd(),
		c.historyCmd(),
		c.exportAnalyticsCmd(),
		c.suggestCmd(),
		c.logsCmd(),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadConfig reads the config file with the command-line overrides applied.
func (c *cli) loadConfig() (*config.Global, error) {
	cfg, err := config.LoadGlobalOrDefault(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.rulesDir != "" {
		cfg.Engine.RulesDir = c.rulesDir
	}
	if c.profile != "" {
		cfg.Engine.Profile = c.profile
	}
	return cfg, nil
}

// openAnalytics opens the analytics store named by the config.
func (c *cli) openAnalytics() (*state.DB, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Analytics.IsEnabled() {
		return nil, errors.New("analytics is disabled in the config")
	}
	db, err := state.Open(cfg.Analytics.Path)
	if err != nil {
		return nil, fmt.Errorf("opening analytics database: %w", err)
	}
	return db, nil
}
