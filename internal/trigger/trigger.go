// internal/trigger/trigger.go
package trigger

import (
	"context"
	"time"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/probe"
)

// CPUSample is how long a cpu_above check measures CPU load.
const CPUSample = 100 * time.Millisecond

// Condition is one compiled trigger of a rule. Conditions are polled; they
// hold no state between calls.
type Condition interface {
	// Holds reports whether the condition is satisfied at now. An error
	// means the probe could not answer; callers treat it as unsatisfied.
	Holds(ctx context.Context, now time.Time, r probe.Reader) (bool, error)
	Kind() config.TriggerKind
	String() string
}

// AllHold evaluates conditions left to right and stops at the first that
// does not hold. An empty list holds. The returned error, if any, belongs
// to the condition that stopped evaluation.
func AllHold(ctx context.Context, now time.Time, r probe.Reader, conds []Condition) (bool, Condition, error) {
	for _, c := range conds {
		ok, err := c.Holds(ctx, now, r)
		if err != nil || !ok {
			return false, c, err
		}
	}
	return true, nil, nil
}
