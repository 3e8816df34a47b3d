// cmd/appflow/suggest.go
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/probe"
	"github.com/colebrumley/appflow/internal/suggest"
	"github.com/spf13/cobra"
)

func (c *cli) suggestCmd() *cobra.Command {
	var (
		logPath   string
		window    int
		minCount  int
		emitRules bool
	)
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest rules from the launch history in the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if logPath == "" {
				logPath = cfg.Engine.EventLog
			}
			opts := suggest.Options{
				Window:   cfg.Suggestions.Window(),
				MinCount: cfg.Suggestions.MinCount,
			}
			if window > 0 {
				opts.Window = time.Duration(window) * time.Second
			}
			if minCount > 0 {
				opts.MinCount = minCount
			}
			if pct, ok := probe.NewSystem(logging.Discard()).BatteryPercent(cmd.Context()); ok {
				opts.Battery = &pct
			}

			events, err := suggest.ParseFile(logPath)
			if err != nil {
				return err
			}
			return writeSuggestions(cmd.OutOrStdout(), events, opts, emitRules)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "event log to analyze (default engine.event_log)")
	cmd.Flags().IntVar(&window, "window", 0, "seconds between two launches that still count as a sequence")
	cmd.Flags().IntVar(&minCount, "min-count", 0, "occurrences needed before a pattern is suggested")
	cmd.Flags().BoolVar(&emitRules, "emit-rules", false, "print rule templates for sequence suggestions")
	return cmd
}

func writeSuggestions(out io.Writer, events []suggest.Launch, opts suggest.Options, emitRules bool) error {
	found := suggest.Mine(events, opts)
	if len(found) == 0 {
		fmt.Fprintln(out, "No workflow suggestions yet")
		return nil
	}

	fmt.Fprintln(out, "Workflow suggestions:")
	for _, s := range found {
		fmt.Fprintf(out, "  - %s\n", s)
	}

	if !emitRules {
		return nil
	}
	pairs := suggest.Sequences(found)
	if len(pairs) == 0 {
		return nil
	}
	data, err := suggest.MarshalRules(suggest.RuleTemplates(pairs))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n# Suggested rules\n%s", data)
	return nil
}

func (c *cli) logsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the end of the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(cfg.Engine.EventLog)
			if os.IsNotExist(err) {
				return fmt.Errorf("event log not found: %s", cfg.Engine.EventLog)
			}
			if err != nil {
				return err
			}
			defer f.Close()

			tail, err := tailLines(f, lines)
			if err != nil {
				return err
			}
			for _, l := range tail {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}

// tailLines returns the last n lines of r.
func tailLines(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return ring, nil
}
