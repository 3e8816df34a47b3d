// internal/engine/scheduler.go
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/executor"
	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/probe"
)

// State is the scheduler's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// ExecutionRecorder persists execution outcomes. *state.Recorder satisfies
// it; implementations must not block for long or fail the caller.
type ExecutionRecorder interface {
	RecordExecution(ruleName string, success bool, duration time.Duration, triggerType, errMsg string)
}

// Sampler is the background metrics sampler the scheduler owns.
// *monitor.Sampler satisfies it.
type Sampler interface {
	Start(interval time.Duration)
	Stop()
	Running() bool
}

// SchedulerOptions configures a Scheduler. Recorder and Sampler are
// optional.
type SchedulerOptions struct {
	Probe          probe.Reader
	Executor       *executor.Executor
	Recorder       ExecutionRecorder
	Sampler        Sampler
	SampleInterval time.Duration
	Events         *logging.EventLog
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	PollInterval   time.Duration
	RunOnce        bool
}

// Scheduler polls rules, evaluates them and executes the ones that fire.
// Rules run one after another on the scheduler goroutine.
type Scheduler struct {
	probe    probe.Reader
	exec     *executor.Executor
	recorder ExecutionRecorder
	sampler  Sampler
	interval time.Duration
	events   *logging.EventLog
	logger   *slog.Logger
	metrics  *metrics.Metrics
	poll     time.Duration
	runOnce  bool

	rules   atomic.Pointer[[]*ruleRuntime]
	state   atomic.Int32
	cycles  atomic.Int64
	started atomic.Pointer[time.Time]

	// loadMu orders Load against markExecuted so a reload never drops a
	// last execution. It is never held while actions run.
	loadMu sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler builds a scheduler with no rules loaded.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Scheduler{
		probe:    opts.Probe,
		exec:     opts.Executor,
		recorder: opts.Recorder,
		sampler:  opts.Sampler,
		interval: opts.SampleInterval,
		events:   opts.Events,
		logger:   logger,
		metrics:  opts.Metrics,
		poll:     opts.PollInterval,
		runOnce:  opts.RunOnce,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	s.rules.Store(&[]*ruleRuntime{})
	return s
}

// Load replaces the rule list. Rules whose triggers do not compile are
// skipped and reported in the returned error; the rest are loaded. A rule
// keeps its last execution time across loads when its name is unchanged,
// so editing a rule file does not reset cooldowns. The swap is atomic: an
// in-flight pass finishes with the list it started with.
func (s *Scheduler) Load(rules []config.Rule) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	prev := map[string]time.Time{}
	for _, rt := range s.snapshot() {
		if last := rt.last(); !last.IsZero() {
			prev[rt.rule.Name] = last
		}
	}

	var errs []error
	next := make([]*ruleRuntime, 0, len(rules))
	enabled := 0
	for _, r := range rules {
		rt, err := compileRule(r)
		if err != nil {
			errs = append(errs, err)
			s.logger.Error("skipping rule", "rule", r.Name, "error", err)
			continue
		}
		if last, ok := prev[r.Name]; ok {
			rt.lastExecution = last
		}
		if r.IsEnabled() {
			enabled++
		}
		next = append(next, rt)
	}
	s.rules.Store(&next)
	s.metrics.SetRules(len(next), enabled)
	return errors.Join(errs...)
}

// Reload is Load for a running engine; it also writes the event log.
func (s *Scheduler) Reload(rules []config.Rule) error {
	err := s.Load(rules)
	s.events.Log("Rules reloaded")
	s.logger.Info("rules reloaded", "rules_loaded", len(s.snapshot()))
	return err
}

func (s *Scheduler) snapshot() []*ruleRuntime {
	return *s.rules.Load()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run evaluates every rule once per poll interval until ctx is cancelled,
// or once when RunOnce is set. Cancellation lets the current pass,
// including any wait actions, finish before the scheduler stops.
func (s *Scheduler) Run(ctx context.Context) {
	started := s.now()
	s.started.Store(&started)
	s.setState(StateIdle)

	s.events.Log("Rule engine started")
	s.logger.Info("rule engine started", "rules", len(s.snapshot()), "poll_interval", s.poll, "run_once", s.runOnce)

	if s.sampler != nil && !s.runOnce {
		s.sampler.Start(s.interval)
	}

	passCtx := context.WithoutCancel(ctx)
	for {
		s.setState(StateEvaluating)
		begin := s.now()
		s.pass(passCtx)
		elapsed := s.now().Sub(begin)
		s.cycles.Add(1)
		s.metrics.ObserveCycle(elapsed)

		if s.runOnce || ctx.Err() != nil {
			break
		}

		s.setState(StateSleeping)
		if err := s.sleep(ctx, max(0, s.poll-elapsed)); err != nil {
			break
		}
	}

	s.setState(StateStopped)
	if s.sampler != nil {
		s.sampler.Stop()
	}
	s.events.Log("Rule engine stopped")
	s.logger.Info("rule engine stopped", "cycles", s.cycles.Load())
}

// pass runs one evaluation pass over a snapshot of the rules.
func (s *Scheduler) pass(ctx context.Context) {
	for _, rt := range s.snapshot() {
		if rt.evaluate(ctx, s.now(), s.probe, s.logger, s.metrics) {
			s.execute(ctx, rt, rt.rule.TriggerType())
		}
	}
}

// execute runs a rule and records the outcome. The rule's last execution
// is set before its actions start.
func (s *Scheduler) execute(ctx context.Context, rt *ruleRuntime, triggerType string) *executor.Result {
	s.markExecuted(rt, s.now())
	res := s.exec.Execute(ctx, rt.rule, triggerType)
	if s.recorder != nil {
		s.recorder.RecordExecution(rt.rule.Name, res.Success(), res.Duration, triggerType, res.Error)
	}
	return res
}

// markExecuted stamps rt and, when a reload has replaced rt since the pass
// took its snapshot, the runtime now loaded under the same name.
func (s *Scheduler) markExecuted(rt *ruleRuntime, at time.Time) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	rt.markExecuted(at)
	for _, cur := range s.snapshot() {
		if cur != rt && cur.rule.Name == rt.rule.Name {
			cur.markExecuted(at)
		}
	}
}

// RunRule executes the named rule immediately, bypassing its triggers and
// cooldown. The execution is recorded with trigger type "manual".
func (s *Scheduler) RunRule(ctx context.Context, name string) (*executor.Result, error) {
	for _, rt := range s.snapshot() {
		if rt.rule.Name == name {
			return s.execute(context.WithoutCancel(ctx), rt, "manual"), nil
		}
	}
	return nil, ErrRuleNotFound
}

// Stats summarizes the engine for the status endpoint and the CLI.
type Stats struct {
	TotalRules         int     `json:"total_rules"`
	EnabledRules       int     `json:"enabled_rules"`
	AnalyticsAvailable bool    `json:"analytics_available"`
	MonitoringActive   bool    `json:"monitoring_active"`
	State              string  `json:"state"`
	Cycles             int64   `json:"cycles"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	PollInterval       float64 `json:"poll_interval_seconds"`
}

// Stats reports the current engine statistics.
func (s *Scheduler) Stats() Stats {
	rules := s.snapshot()
	st := Stats{
		TotalRules:         len(rules),
		AnalyticsAvailable: s.recorder != nil,
		MonitoringActive:   s.sampler != nil && s.sampler.Running(),
		State:              s.State().String(),
		Cycles:             s.cycles.Load(),
		PollInterval:       s.poll.Seconds(),
	}
	if r, ok := s.recorder.(interface{ Enabled() bool }); ok {
		st.AnalyticsAvailable = r.Enabled()
	}
	for _, rt := range rules {
		if rt.rule.IsEnabled() {
			st.EnabledRules++
		}
	}
	if started := s.started.Load(); started != nil && s.State() != StateStopped {
		st.UptimeSeconds = s.now().Sub(*started).Seconds()
	}
	return st
}

// RuleInfo describes a loaded rule.
type RuleInfo struct {
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Enabled         bool       `json:"enabled"`
	Triggers        int        `json:"triggers"`
	Actions         int        `json:"actions"`
	CooldownSeconds float64    `json:"cooldown_seconds"`
	LastExecution   *time.Time `json:"last_execution,omitempty"`
}

// Rules lists the loaded rules in load order.
func (s *Scheduler) Rules() []RuleInfo {
	rules := s.snapshot()
	out := make([]RuleInfo, 0, len(rules))
	for _, rt := range rules {
		info := RuleInfo{
			Name:            rt.rule.Name,
			Description:     rt.rule.Description,
			Enabled:         rt.rule.IsEnabled(),
			Triggers:        len(rt.rule.Triggers),
			Actions:         len(rt.rule.Actions),
			CooldownSeconds: rt.rule.Cooldown,
		}
		if last := rt.last(); !last.IsZero() {
			info.LastExecution = &last
		}
		out = append(out, info)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
