// internal/probe/probe.go
package probe

import (
	"context"
	"time"
)

// Reader reports point-in-time machine facts.
type Reader interface {
	IsProcessRunning(ctx context.Context, name string) (bool, error)
	// BatteryPercent returns false when no battery is present or readable.
	BatteryPercent(ctx context.Context) (float64, bool)
	CPUPercent(ctx context.Context, sample time.Duration) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	// NetworkBytesPerSec is the combined send+receive rate since the
	// previous call on the same probe. The first call returns 0.
	NetworkBytesPerSec(ctx context.Context) (float64, error)
	// NetworkBytes is the cumulative sent+received byte counter.
	NetworkBytes(ctx context.Context) (uint64, error)
}

// Effector performs OS-level side effects.
type Effector interface {
	Launch(ctx context.Context, command string) error
	// KillByName terminates every process with the exact name and reports
	// whether any was signalled.
	KillByName(ctx context.Context, name string) (bool, error)
	Notify(ctx context.Context, message string) error
	OpenTarget(ctx context.Context, target string) error
}

// Probe is the full capability set the engine depends on.
type Probe interface {
	Reader
	Effector
}

// NotificationTitle is the title shown on desktop notifications.
const NotificationTitle = "AppFlow"
