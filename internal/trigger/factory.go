// internal/trigger/factory.go
package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/colebrumley/appflow/internal/config"
)

// New compiles a trigger into a Condition
func New(t config.Trigger) (Condition, error) {
	switch t.Kind {
	case config.TriggerAppStart:
		return newProcess(t, true)
	case config.TriggerAppExit:
		return newProcess(t, false)
	case config.TriggerAtTime:
		return newAtTime(t)
	case config.TriggerBatteryBelow:
		th, err := threshold(t)
		if err != nil {
			return nil, err
		}
		return &BatteryBelow{Percent: th}, nil
	case config.TriggerCPUAbove:
		th, err := threshold(t)
		if err != nil {
			return nil, err
		}
		return &CPUAbove{Percent: th}, nil
	case config.TriggerNetworkAbove:
		th, err := threshold(t)
		if err != nil {
			return nil, err
		}
		return &NetworkAbove{KBps: th}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownTrigger, t.Kind)
	}
}

// Compile compiles every trigger of a rule, failing on the first bad one.
func Compile(triggers []config.Trigger) ([]Condition, error) {
	conds := make([]Condition, 0, len(triggers))
	for i, t := range triggers {
		c, err := New(t)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i+1, err)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func newProcess(t config.Trigger, wantRunning bool) (*Process, error) {
	name := strings.TrimSpace(t.Value)
	if name == "" {
		return nil, fmt.Errorf("%s needs a process name", t.Kind)
	}
	return &Process{Name: name, Running: wantRunning}, nil
}

func newAtTime(t config.Trigger) (*AtTime, error) {
	if _, err := time.Parse("15:04", t.Value); err != nil || len(t.Value) != 5 {
		return nil, fmt.Errorf("at_time %q must be HH:MM", t.Value)
	}
	return &AtTime{HHMM: t.Value}, nil
}

func threshold(t config.Trigger) (float64, error) {
	v, err := t.Threshold()
	if err != nil {
		return 0, fmt.Errorf("%s threshold %q is not a number", t.Kind, t.Value)
	}
	return v, nil
}
