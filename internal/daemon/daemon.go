// internal/daemon/daemon.go
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/engine"
	"github.com/colebrumley/appflow/internal/executor"
	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/monitor"
	"github.com/colebrumley/appflow/internal/probe"
	"github.com/colebrumley/appflow/internal/security"
	"github.com/colebrumley/appflow/internal/state"
	"github.com/colebrumley/appflow/internal/status"
	"golang.org/x/sync/errgroup"
)

// Options are command-line overrides applied on top of the config file.
type Options struct {
	ConfigPath string
	RulesDir   string // overrides engine.rules_dir
	LogFile    string // overrides logging.file
	EventLog   string // overrides engine.event_log
	Profile    string // overrides engine.profile
	// PollInterval overrides engine.poll_interval_seconds when positive.
	PollInterval float64
	// RuleName restricts the engine to a single rule.
	RuleName string
	RunOnce  bool

	// Probe replaces the system probe, for tests.
	Probe probe.Probe
	// Logger replaces the configured logger, for tests.
	Logger *slog.Logger
}

// Daemon wires the rule engine to its analytics, sampler, status server,
// rules watcher and scheduled maintenance.
type Daemon struct {
	opts      Options
	config    *config.Global
	logger    *slog.Logger
	logCloser io.Closer
	events    *logging.EventLog
	metrics   *metrics.Metrics
	stateDB   *state.DB
	recorder  *state.Recorder
	probe     probe.Probe
	sched     *engine.Scheduler
	rulesDir  string
}

// New creates a new daemon instance
func New(opts Options) *Daemon {
	return &Daemon{opts: opts}
}

// Run starts the engine and blocks until ctx is cancelled, or until the
// single pass finishes when run_once is set.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.init(); err != nil {
		return err
	}
	defer d.shutdown()

	runOnce := d.config.Engine.RunOnce
	d.logger.Info("starting daemon", "config", d.opts.ConfigPath, "rules_dir", d.rulesDir, "run_once", runOnce)

	g, gctx := errgroup.WithContext(ctx)
	// Helpers stop when the scheduler does, not only on ctx. Their failures
	// are logged and never end the engine.
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	g.Go(func() error {
		defer stopAux()
		d.sched.Run(gctx)
		return nil
	})

	if !runOnce {
		if d.config.Status.Enabled {
			srv := status.New(d.sched, d.stateDB, status.Options{
				Addr:              d.config.Status.Addr(),
				MaxConcurrent:     d.config.Status.MaxConcurrent,
				RequestsPerMinute: d.config.Status.RequestsPerMinute,
				Logger:            d.logger,
				Metrics:           d.metrics,
			})
			g.Go(func() error {
				if err := srv.Run(auxCtx); err != nil {
					d.logger.Error("status endpoint stopped, engine keeps running", "addr", d.config.Status.Addr(), "error", err)
				}
				return nil
			})
		}
		if d.opts.RuleName == "" {
			g.Go(func() error { return d.watchRules(auxCtx) })
		}
		g.Go(func() error {
			if err := d.runMaintenance(auxCtx); err != nil {
				d.logger.Error("scheduled maintenance disabled, engine keeps running", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// RunRule executes one rule immediately, ignoring its triggers and
// cooldown, and returns the outcome.
func (d *Daemon) RunRule(ctx context.Context, name string) (*executor.Result, error) {
	d.opts.RuleName = name
	if err := d.init(); err != nil {
		return nil, err
	}
	defer d.shutdown()
	return d.sched.RunRule(ctx, name)
}

func (d *Daemon) init() error {
	cfg, err := config.LoadGlobalOrDefault(d.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	d.applyOverrides(cfg)
	d.config = cfg
	d.rulesDir = cfg.Engine.RulesDir

	if d.opts.Logger != nil {
		d.logger = d.opts.Logger
	} else {
		logger, closer, err := logging.Open(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.MaxSizeMB)
		d.logger, d.logCloser = logger, closer
		if err != nil {
			d.logger.Warn("failed to initialize rotating log writer, using stdout", "error", err)
		}
	}

	events, err := logging.OpenEventLog(cfg.Engine.EventLog, d.logger)
	if err != nil {
		d.logger.Warn("event log unavailable, events will only reach the daemon log", "error", err)
		events = logging.NewEventLog(nil, d.logger)
	}
	d.events = events
	d.metrics = metrics.New()

	d.initStateDB()
	d.recorder = state.NewRecorder(d.stateDB, d.logger, d.metrics)

	d.probe = d.opts.Probe
	if d.probe == nil {
		d.probe = probe.NewSystem(d.logger)
	}

	// World-writable rules can launch arbitrary commands; report it but keep going.
	if err := security.ValidateRulesDir(d.rulesDir); err != nil {
		d.logger.Error("CRITICAL: rules directory has unsafe permissions", "error", err, "path", d.rulesDir)
	}

	rules, err := d.loadRules()
	if err != nil {
		d.shutdown()
		return fmt.Errorf("loading rules: %w", err)
	}

	exec := executor.New(d.probe, executor.Options{
		Notifications: cfg.Engine.Notifications(),
		Events:        d.events,
		Logger:        d.logger,
		Metrics:       d.metrics,
	})
	opts := engine.SchedulerOptions{
		Probe:        d.probe,
		Executor:     exec,
		Recorder:     d.recorder,
		Events:       d.events,
		Logger:       d.logger,
		Metrics:      d.metrics,
		PollInterval: cfg.Engine.PollInterval(),
		RunOnce:      cfg.Engine.RunOnce,
	}
	if cfg.Monitoring.IsEnabled() {
		opts.Sampler = monitor.New(d.probe, d.recorder, d.logger, d.metrics)
		opts.SampleInterval = cfg.Monitoring.Interval()
	}
	d.sched = engine.NewScheduler(opts)
	// Rules that fail to compile were logged by Load and are skipped.
	_ = d.sched.Load(rules)

	d.logger.Info("rules loaded", "rules_loaded", len(rules))
	return nil
}

func (d *Daemon) applyOverrides(cfg *config.Global) {
	if d.opts.RulesDir != "" {
		cfg.Engine.RulesDir = d.opts.RulesDir
	}
	if d.opts.LogFile != "" {
		cfg.Logging.File = d.opts.LogFile
	}
	if d.opts.EventLog != "" {
		cfg.Engine.EventLog = d.opts.EventLog
	}
	if d.opts.Profile != "" {
		cfg.Engine.Profile = d.opts.Profile
	}
	if d.opts.PollInterval > 0 {
		cfg.Engine.PollIntervalSeconds = d.opts.PollInterval
	}
	if d.opts.RunOnce {
		cfg.Engine.RunOnce = true
	}
}

// initStateDB opens the analytics store and applies retention. Failure
// leaves analytics disabled; the engine runs without it.
func (d *Daemon) initStateDB() {
	if !d.config.Analytics.IsEnabled() {
		d.logger.Info("analytics disabled")
		return
	}
	db, err := state.Open(d.config.Analytics.Path)
	if err != nil {
		d.logger.Warn("failed to initialize analytics database, executions will not be recorded", "error", err)
		return
	}
	d.stateDB = db
	d.cleanup()
}

func (d *Daemon) cleanup() {
	if d.stateDB == nil {
		return
	}
	deleted, err := d.stateDB.Cleanup(d.config.Analytics.RetentionDays)
	if err != nil {
		d.logger.Warn("analytics cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		d.logger.Info("cleaned up old analytics records", "deleted", deleted)
	}
}

// loadRules reads, validates and decodes the rule files for the configured
// profile. Invalid rules are reported and skipped.
func (d *Daemon) loadRules() ([]config.Rule, error) {
	docs, err := config.LoadRules(d.rulesDir, d.config.Engine.Profile)
	if err != nil {
		return nil, err
	}
	for _, issue := range config.Validate(docs) {
		d.logger.Warn("rule validation issue", "rule", issue.Rule, "issue", issue.Message)
	}
	rules, errs := config.DecodeRules(docs)
	for _, err := range errs {
		d.logger.Error("skipping invalid rule", "error", err)
	}

	if name := d.opts.RuleName; name != "" {
		rules = config.FilterByName(rules, name)
		if len(rules) == 0 {
			return nil, fmt.Errorf("%w: %q", engine.ErrRuleNotFound, name)
		}
	}
	return rules, nil
}

// reloadRules re-reads the rules directory and swaps the rule list.
func (d *Daemon) reloadRules() {
	if err := security.ValidateRulesDir(d.rulesDir); err != nil {
		d.logger.Error("CRITICAL: rules directory has unsafe permissions during reload", "error", err)
		return
	}
	rules, err := d.loadRules()
	if err != nil {
		d.logger.Error("failed to reload rules", "error", err)
		return
	}
	if err := d.sched.Reload(rules); err != nil {
		d.logger.Warn("some rules were not reloaded", "error", err)
	}
}

func (d *Daemon) shutdown() {
	if d.stateDB != nil {
		if err := d.stateDB.Close(); err != nil {
			d.logger.Warn("closing analytics database", "error", err)
		}
		d.stateDB = nil
	}
	if d.events != nil {
		d.events.Close()
		d.events = nil
	}
	if d.logCloser != nil {
		d.logCloser.Close()
		d.logCloser = nil
	}
}
