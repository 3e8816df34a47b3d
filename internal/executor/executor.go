// internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/probe"
	"github.com/colebrumley/appflow/internal/security"
	"github.com/colebrumley/appflow/internal/template"
)

const (
	StateSuccess = "success"
	StateFailure = "failure"
)

// Result represents the outcome of running one rule's actions
type Result struct {
	State    string
	Error    string // first action error; later ones are only logged
	Duration time.Duration
	Actions  int
	Failed   int
}

// Success reports whether every action completed.
func (r *Result) Success() bool { return r.State == StateSuccess }

// Options configures an Executor.
type Options struct {
	// Notifications false turns notify actions into log-only no-ops.
	Notifications bool
	Events        *logging.EventLog
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Executor runs action sequences against a probe.
type Executor struct {
	probe         probe.Effector
	notifications bool
	events        *logging.EventLog
	logger        *slog.Logger
	metrics       *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor.
func New(p probe.Effector, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		probe:         p,
		notifications: opts.Notifications,
		events:        opts.Events,
		logger:        logger,
		metrics:       opts.Metrics,
		now:           time.Now,
		sleep:         sleepCtx,
	}
}

// Execute runs the rule's actions in order. A failing action is logged and
// the remaining actions still run. Cancelling ctx cuts a pending wait
// short; callers that must finish the sequence pass an uncancelled context.
func (e *Executor) Execute(ctx context.Context, rule config.Rule, triggerType string) *Result {
	logger := logging.WithRule(e.logger, rule.Name)
	start := e.now()
	vars := template.ActionVars(rule.Name, triggerType, start)

	e.events.Logf("Executing rule: %s", rule.Name)
	logger.Info("executing rule", "trigger_type", triggerType, "actions", len(rule.Actions))

	res := &Result{State: StateSuccess, Actions: len(rule.Actions)}
	for _, a := range rule.Actions {
		err := e.run(ctx, a, vars)
		e.metrics.ObserveAction(string(a.Kind), err == nil)
		if err == nil {
			continue
		}
		res.Failed++
		if res.State == StateSuccess {
			res.State = StateFailure
			res.Error = fmt.Sprintf("%s: %v", a, err)
		}
		e.events.Logf("Error executing action %s: %v", a, err)
		logger.Warn("action failed", "action", a.String(), "error", err)
	}

	res.Duration = e.now().Sub(start)
	e.events.Logf("Finished rule: %s", rule.Name)
	logger.Info("finished rule", "state", res.State, "duration", res.Duration, "failed_actions", res.Failed)
	e.metrics.ObserveExecution(rule.Name, res.State, res.Duration)
	return res
}

func (e *Executor) run(ctx context.Context, a config.Action, vars map[string]any) error {
	arg := security.SanitizeValue(template.Expand(a.Value, vars))

	switch a.Kind {
	case config.ActionLaunch:
		if arg == "" {
			return fmt.Errorf("empty command")
		}
		if err := e.probe.Launch(ctx, arg); err != nil {
			return err
		}
	case config.ActionKill:
		killed, err := e.probe.KillByName(ctx, arg)
		if err != nil {
			return err
		}
		if !killed {
			return fmt.Errorf("no process named %q is running", arg)
		}
	case config.ActionWait:
		secs, err := a.Seconds()
		if err != nil {
			return fmt.Errorf("invalid wait %q: %w", a.Value, err)
		}
		if secs < 0 {
			return fmt.Errorf("invalid wait %q: negative duration", a.Value)
		}
		if err := e.sleep(ctx, time.Duration(secs*float64(time.Second))); err != nil {
			return err
		}
		arg = a.Value
	case config.ActionNotify:
		if !e.notifications {
			e.logger.Info("notification suppressed", "message", arg)
		} else if err := e.probe.Notify(ctx, arg); err != nil {
			return err
		}
	case config.ActionOpenURL:
		target := ResolveTarget(arg)
		if err := e.probe.OpenTarget(ctx, target); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownAction, a.Kind)
	}

	e.events.Logf("%s -> %s", a.Kind, arg)
	return nil
}

var urlSchemes = []string{"http://", "https://", "file://"}

// ResolveTarget decides how an open_url target is opened: URLs with a known
// scheme and existing paths are passed through, anything else is taken to
// be a bare host and gets https://.
func ResolveTarget(target string) string {
	for _, s := range urlSchemes {
		if strings.HasPrefix(target, s) {
			return target
		}
	}
	if probe.PathExists(target) {
		return target
	}
	return "https://" + target
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
