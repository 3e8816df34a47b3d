// internal/daemon/maintenance.go
package daemon

import (
	"context"
	"fmt"

	"github.com/colebrumley/appflow/internal/suggest"
	"github.com/robfig/cron/v3"
)

// runMaintenance runs the scheduled jobs: analytics retention and, when
// enabled, periodic workflow suggestions. It blocks until ctx is done.
func (d *Daemon) runMaintenance(ctx context.Context) error {
	c := cron.New(cron.WithSeconds())

	if d.stateDB != nil {
		if _, err := c.AddFunc(d.config.Analytics.CleanupSchedule, d.cleanup); err != nil {
			return fmt.Errorf("parsing cleanup schedule %q: %w", d.config.Analytics.CleanupSchedule, err)
		}
	}
	if d.config.Suggestions.Auto {
		if _, err := c.AddFunc(d.config.Suggestions.Schedule, func() { d.logSuggestions(ctx) }); err != nil {
			return fmt.Errorf("parsing suggestions schedule %q: %w", d.config.Suggestions.Schedule, err)
		}
	}
	if len(c.Entries()) == 0 {
		<-ctx.Done()
		return nil
	}

	c.Start()
	d.logger.Info("maintenance scheduler started", "jobs", len(c.Entries()))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// logSuggestions mines the event log and logs what it finds.
func (d *Daemon) logSuggestions(ctx context.Context) {
	found, err := d.suggestions(ctx)
	if err != nil {
		d.logger.Warn("workflow suggestions failed", "error", err)
		return
	}
	for _, s := range found {
		d.logger.Info("workflow suggestion", "kind", string(s.Kind), "suggestion", s.String())
	}
}

func (d *Daemon) suggestions(ctx context.Context) ([]suggest.Suggestion, error) {
	events, err := suggest.ParseFile(d.config.Engine.EventLog)
	if err != nil {
		return nil, err
	}
	opts := suggest.Options{
		Window:   d.config.Suggestions.Window(),
		MinCount: d.config.Suggestions.MinCount,
	}
	if pct, ok := d.probe.BatteryPercent(ctx); ok {
		opts.Battery = &pct
	}
	return suggest.Mine(events, opts), nil
}
