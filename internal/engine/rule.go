// internal/engine/rule.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/probe"
	"github.com/colebrumley/appflow/internal/trigger"
)

// ErrRuleNotFound is returned when a named rule is not loaded.
var ErrRuleNotFound = errors.New("rule not found")

// ruleRuntime is a loaded rule with its compiled conditions and the start
// time of its last execution.
type ruleRuntime struct {
	rule  config.Rule
	conds []trigger.Condition

	mu            sync.Mutex
	lastExecution time.Time // zero = never
}

func compileRule(rule config.Rule) (*ruleRuntime, error) {
	conds, err := trigger.Compile(rule.Triggers)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
	}
	return &ruleRuntime{rule: rule, conds: conds}, nil
}

func (rt *ruleRuntime) last() time.Time {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastExecution
}

func (rt *ruleRuntime) markExecuted(at time.Time) {
	rt.mu.Lock()
	rt.lastExecution = at
	rt.mu.Unlock()
}

// coolingDown reports whether now falls inside the rule's cooldown window.
func (rt *ruleRuntime) coolingDown(now time.Time) bool {
	cooldown := rt.rule.CooldownDuration()
	if cooldown <= 0 {
		return false
	}
	last := rt.last()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < cooldown
}

// evaluate decides whether the rule should run at now. A probe failure
// counts as an unsatisfied trigger.
func (rt *ruleRuntime) evaluate(ctx context.Context, now time.Time, r probe.Reader, logger *slog.Logger, m *metrics.Metrics) bool {
	if !rt.rule.IsEnabled() {
		return false
	}
	if rt.coolingDown(now) {
		return false
	}
	ok, failed, err := trigger.AllHold(ctx, now, r, rt.conds)
	if err != nil {
		logger.Warn("trigger check failed", "rule", rt.rule.Name, "trigger", failed.String(), "error", err)
		m.ProbeError(string(failed.Kind()))
		return false
	}
	return ok
}
