// internal/probe/fake.go
package probe

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Call is one effect recorded by Fake.
type Call struct {
	Op  string
	Arg string
}

func (c Call) String() string { return c.Op + "(" + c.Arg + ")" }

// Fake is an in-memory Probe for tests. Its zero value reports nothing
// running, no battery, idle CPU and network, and succeeds every effect.
type Fake struct {
	mu sync.Mutex

	running    map[string]bool
	battery    float64
	hasBattery bool
	cpu        float64
	memory     float64
	netRate    float64
	netBytes   uint64
	readErr    error

	// failing effects keyed by op, then argument ("" matches any argument)
	failures map[string]map[string]error
	calls    []Call
	reads    int
}

// NewFake creates an empty fake probe.
func NewFake() *Fake {
	return &Fake{}
}

// SetRunning marks a process as running or not.
func (f *Fake) SetRunning(name string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running == nil {
		f.running = map[string]bool{}
	}
	f.running[name] = running
}

// SetBattery sets the battery level. Use ClearBattery for "no battery".
func (f *Fake) SetBattery(pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.battery, f.hasBattery = pct, true
}

func (f *Fake) ClearBattery() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasBattery = false
}

func (f *Fake) SetCPU(pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpu = pct
}

func (f *Fake) SetMemory(pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memory = pct
}

// SetNetwork sets the rate returned by NetworkBytesPerSec and the counter
// returned by NetworkBytes.
func (f *Fake) SetNetwork(bytesPerSec float64, total uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.netRate, f.netBytes = bytesPerSec, total
}

// SetReadError makes every reading fail with err.
func (f *Fake) SetReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// Fail makes op fail with err when called with arg. An empty arg matches
// every argument.
func (f *Fake) Fail(op, arg string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == nil {
		f.failures = map[string]map[string]error{}
	}
	if f.failures[op] == nil {
		f.failures[op] = map[string]error{}
	}
	f.failures[op][arg] = err
}

// Calls returns a copy of the effects performed so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Reads returns how many readings have been taken.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *Fake) read() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.readErr
}

func (f *Fake) effect(op, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Arg: arg})
	if byArg, ok := f.failures[op]; ok {
		if err, ok := byArg[arg]; ok {
			return err
		}
		if err, ok := byArg[""]; ok {
			return err
		}
	}
	return nil
}

func (f *Fake) IsProcessRunning(_ context.Context, name string) (bool, error) {
	if err := f.read(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[name], nil
}

func (f *Fake) BatteryPercent(_ context.Context) (float64, bool) {
	if err := f.read(); err != nil {
		return 0, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.battery, f.hasBattery
}

func (f *Fake) CPUPercent(_ context.Context, _ time.Duration) (float64, error) {
	if err := f.read(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cpu, nil
}

func (f *Fake) MemoryPercent(_ context.Context) (float64, error) {
	if err := f.read(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memory, nil
}

func (f *Fake) NetworkBytesPerSec(_ context.Context) (float64, error) {
	if err := f.read(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.netRate, nil
}

func (f *Fake) NetworkBytes(_ context.Context) (uint64, error) {
	if err := f.read(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.netBytes, nil
}

func (f *Fake) Launch(_ context.Context, command string) error {
	return f.effect("launch", command)
}

// KillByName reports true when the process is marked running, and marks it
// stopped.
func (f *Fake) KillByName(_ context.Context, name string) (bool, error) {
	if err := f.effect("kill", name); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[name] {
		return false, nil
	}
	f.running[name] = false
	return true, nil
}

func (f *Fake) Notify(_ context.Context, message string) error {
	return f.effect("notify", message)
}

func (f *Fake) OpenTarget(_ context.Context, target string) error {
	return f.effect("open", target)
}

var _ Probe = (*Fake)(nil)
var _ Probe = (*System)(nil)

// ErrFake is a ready-made failure for tests.
var ErrFake = errors.New("fake probe failure")
