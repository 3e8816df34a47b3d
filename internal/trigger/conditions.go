// internal/trigger/conditions.go
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/probe"
)

// Process holds while the named process is running (app_start) or not
// running (app_exit).
type Process struct {
	Name    string
	Running bool
}

func (p *Process) Holds(ctx context.Context, _ time.Time, r probe.Reader) (bool, error) {
	running, err := r.IsProcessRunning(ctx, p.Name)
	if err != nil {
		return false, err
	}
	return running == p.Running, nil
}

func (p *Process) Kind() config.TriggerKind {
	if p.Running {
		return config.TriggerAppStart
	}
	return config.TriggerAppExit
}

func (p *Process) String() string { return fmt.Sprintf("%s: %s", p.Kind(), p.Name) }

// AtTime holds only during the single local minute named by HHMM. A poll
// interval longer than a minute can skip it entirely.
type AtTime struct {
	HHMM string
}

func (a *AtTime) Holds(_ context.Context, now time.Time, _ probe.Reader) (bool, error) {
	return now.Format("15:04") == a.HHMM, nil
}

func (a *AtTime) Kind() config.TriggerKind { return config.TriggerAtTime }
func (a *AtTime) String() string           { return "at_time: " + a.HHMM }

// BatteryBelow holds when the battery is strictly below Percent. Machines
// without a battery never satisfy it.
type BatteryBelow struct {
	Percent float64
}

func (b *BatteryBelow) Holds(ctx context.Context, _ time.Time, r probe.Reader) (bool, error) {
	level, ok := r.BatteryPercent(ctx)
	if !ok {
		return false, nil
	}
	return level < b.Percent, nil
}

func (b *BatteryBelow) Kind() config.TriggerKind { return config.TriggerBatteryBelow }
func (b *BatteryBelow) String() string           { return fmt.Sprintf("battery_below: %g", b.Percent) }

// CPUAbove holds when system CPU usage is strictly above Percent.
type CPUAbove struct {
	Percent float64
}

func (c *CPUAbove) Holds(ctx context.Context, _ time.Time, r probe.Reader) (bool, error) {
	pct, err := r.CPUPercent(ctx, CPUSample)
	if err != nil {
		return false, err
	}
	return pct > c.Percent, nil
}

func (c *CPUAbove) Kind() config.TriggerKind { return config.TriggerCPUAbove }
func (c *CPUAbove) String() string           { return fmt.Sprintf("cpu_above: %g", c.Percent) }

// NetworkAbove holds when combined throughput is strictly above KBps
// kilobytes (1024 bytes) per second.
type NetworkAbove struct {
	KBps float64
}

func (n *NetworkAbove) Holds(ctx context.Context, _ time.Time, r probe.Reader) (bool, error) {
	rate, err := r.NetworkBytesPerSec(ctx)
	if err != nil {
		return false, err
	}
	return rate > n.KBps*1024, nil
}

func (n *NetworkAbove) Kind() config.TriggerKind { return config.TriggerNetworkAbove }
func (n *NetworkAbove) String() string           { return fmt.Sprintf("network_above: %g", n.KBps) }
