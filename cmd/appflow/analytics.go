// cmd/appflow/analytics.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/colebrumley/appflow/internal/engine"
	"github.com/colebrumley/appflow/internal/state"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// version is written into analytics exports.
const version = "0.2.0"

const statusTimeout = 5 * time.Second

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query a running daemon's status endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Status.Enabled {
				return fmt.Errorf("the status endpoint is disabled; set status.enabled in %s", c.configPath)
			}
			stats, err := fetchStatus(cmd.Context(), "http://"+cfg.Status.Addr())
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func fetchStatus(ctx context.Context, baseURL string) (*engine.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon is not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %s", resp.Status)
	}
	var stats engine.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &stats, nil
}

func renderStats(out io.Writer, s *engine.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"State", s.State},
		{"Rules", fmt.Sprintf("%d (%d enabled)", s.TotalRules, s.EnabledRules)},
		{"Cycles", s.Cycles},
		{"Uptime", (time.Duration(s.UptimeSeconds) * time.Second).String()},
		{"Poll interval", fmt.Sprintf("%gs", s.PollInterval)},
		{"Analytics", yesNo(s.AnalyticsAvailable)},
		{"Monitoring", yesNo(s.MonitoringActive)},
	})
	t.Render()
}

func (c *cli) analyticsCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarize rule executions and system load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openAnalytics()
			if err != nil {
				return err
			}
			defer db.Close()

			r, err := db.Rollup(period)
			if err != nil {
				return err
			}
			renderRollup(cmd.OutOrStdout(), r)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "week", "day, week, month or all")
	return cmd
}

func renderRollup(out io.Writer, r *state.Rollup) {
	fmt.Fprintf(out, "Analytics for period: %s\n\n", r.Period)

	if len(r.ExecutionStats) == 0 {
		fmt.Fprintln(out, "No rule executions recorded")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Rule", "Executions", "Avg Duration", "Success Rate"})
		for _, s := range r.ExecutionStats {
			t.AppendRow(table.Row{
				s.RuleName,
				s.Executions,
				fmt.Sprintf("%.2fs", s.AvgDurationSeconds),
				fmt.Sprintf("%.1f%%", s.SuccessRate),
			})
		}
		t.Render()
		fmt.Fprintf(out, "Most active rule: %s\n", r.MostActiveRule)
	}
	fmt.Fprintln(out)

	sys := r.SystemStats
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Samples", "Avg CPU", "Avg Memory", "Avg Battery", "Avg Network"})
	t.AppendRow(table.Row{
		sys.Samples,
		optional(sys.AvgCPU, "%.1f%%"),
		optional(sys.AvgMemory, "%.1f%%"),
		optional(sys.AvgBattery, "%.0f%%"),
		optional(sys.AvgNetwork, "%.0f B/s"),
	})
	t.Render()

	var hours []table.Row
	for h, n := range r.HourlyData {
		if n > 0 {
			hours = append(hours, table.Row{fmt.Sprintf("%02d:00", h), n})
		}
	}
	if len(hours) > 0 {
		fmt.Fprintln(out)
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Hour", "Executions"})
		t.AppendRows(hours)
		t.Render()
	}
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		rule   string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent rule executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openAnalytics()
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.GetHistory(rule, status, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded")
				return nil
			}
			renderHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().StringVar(&rule, "rule", "", "only this rule")
	cmd.Flags().StringVar(&status, "state", "", "only success or failure")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records")
	return cmd
}

func renderHistory(out io.Writer, records []state.ExecutionRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Time", "Rule", "Trigger", "State", "Duration", "Error"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.RuleName,
			r.TriggerType,
			r.State(),
			r.Duration.Round(time.Millisecond),
			truncate(r.Error, 50),
		})
	}
	t.Render()
}

func (c *cli) exportAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-analytics <file>",
		Short: "Write the all-time analytics summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openAnalytics()
			if err != nil {
				return err
			}
			defer db.Close()

			r, err := db.Rollup("all")
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			if err := exportAnalytics(f, r, time.Now()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("writing export file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analytics exported to %s\n", args[0])
			return nil
		},
	}
}

type analyticsExport struct {
	ExportTimestamp string        `json:"export_timestamp"`
	AppflowVersion  string        `json:"appflow_version"`
	AnalyticsData   *state.Rollup `json:"analytics_data"`
}

func exportAnalytics(w io.Writer, r *state.Rollup, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(analyticsExport{
		ExportTimestamp: now.Format(time.RFC3339),
		AppflowVersion:  version,
		AnalyticsData:   r,
	}); err != nil {
		return fmt.Errorf("encoding analytics export: %w", err)
	}
	return nil
}
