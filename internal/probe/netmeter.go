// internal/probe/netmeter.go
package probe

import (
	"context"
	"sync"
	"time"
)

// NetMeter turns a cumulative byte counter into a rate. Each meter keeps
// its own previous sample, so independent consumers never see each other's
// deltas.
type NetMeter struct {
	counter func(context.Context) (uint64, error)
	now     func() time.Time

	mu       sync.Mutex
	seeded   bool
	prev     uint64
	prevTime time.Time
}

// NewNetMeter builds a meter over counter.
func NewNetMeter(counter func(context.Context) (uint64, error)) *NetMeter {
	return &NetMeter{counter: counter, now: time.Now}
}

// SetClock overrides the time source.
func (m *NetMeter) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Rate returns bytes per second since the previous call. The first call
// only seeds the meter and returns 0.
func (m *NetMeter) Rate(ctx context.Context) (float64, error) {
	total, err := m.counter(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if !m.seeded {
		m.seeded = true
		m.prev, m.prevTime = total, now
		return 0, nil
	}

	elapsed := now.Sub(m.prevTime).Seconds()
	delta := total - m.prev
	if total < m.prev {
		// counter reset (interface went away)
		delta = 0
	}
	m.prev, m.prevTime = total, now
	if elapsed <= 0 {
		return 0, nil
	}
	return float64(delta) / elapsed, nil
}
