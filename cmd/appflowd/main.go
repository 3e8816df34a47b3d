// cmd/appflowd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/daemon"
	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/mcp"
	"github.com/colebrumley/appflow/internal/probe"
	"github.com/colebrumley/appflow/internal/suggest"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "mcp-server":
			if err := runMCPServer(); err != nil {
				fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
				os.Exit(1)
			}
			return
		case "-h", "--help", "help":
			printUsage()
			return
		}
	}

	if err := runDaemon(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`appflowd - condition-driven app automation daemon

Usage: appflowd [mcp-server]

Environment:
  APPFLOW_CONFIG     config file (default ` + config.DefaultConfigPath() + `)
  APPFLOW_RULES_DIR  rules directory, overrides engine.rules_dir
  APPFLOW_LOG        daemon log file, overrides logging.file`)
}

func configPath() string {
	if p := os.Getenv("APPFLOW_CONFIG"); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// runMCPServer serves the MCP tools on stdio. Deferred cleanup runs before
// main decides the exit code.
func runMCPServer() error {
	cfg, err := config.LoadGlobalOrDefault(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// stdout carries the MCP protocol, so diagnostics go to stderr.
	logger := logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)

	server, err := mcp.NewServer(cfg.Analytics.Path, mcp.Options{
		EventLog: cfg.Engine.EventLog,
		Reader:   probe.NewSystem(logger),
		Suggest: suggest.Options{
			Window:   cfg.Suggestions.Window(),
			MinCount: cfg.Suggestions.MinCount,
		},
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	defer server.Close()

	ctx, cancel := signalContext(nil)
	defer cancel()

	return server.Run(ctx)
}

func runDaemon() error {
	d := daemon.New(daemon.Options{
		ConfigPath: configPath(),
		RulesDir:   os.Getenv("APPFLOW_RULES_DIR"),
		LogFile:    os.Getenv("APPFLOW_LOG"),
	})

	ctx, cancel := signalContext(func() {
		fmt.Println("\nReceived shutdown signal")
	})
	defer cancel()

	return d.Run(ctx)
}
