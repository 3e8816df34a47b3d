// internal/trigger/trigger_test.go
package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/colebrumley/appflow/internal/config"
	"github.com/colebrumley/appflow/internal/probe"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		trigger config.Trigger
		want    string
		wantErr bool
	}{
		{"app_start", config.Trigger{Kind: config.TriggerAppStart, Value: "chrome"}, "app_start: chrome", false},
		{"app_exit", config.Trigger{Kind: config.TriggerAppExit, Value: "zoom"}, "app_exit: zoom", false},
		{"at_time", config.Trigger{Kind: config.TriggerAtTime, Value: "09:00"}, "at_time: 09:00", false},
		{"battery", config.Trigger{Kind: config.TriggerBatteryBelow, Value: "20"}, "battery_below: 20", false},
		{"cpu", config.Trigger{Kind: config.TriggerCPUAbove, Value: "85.5"}, "cpu_above: 85.5", false},
		{"network", config.Trigger{Kind: config.TriggerNetworkAbove, Value: "500"}, "network_above: 500", false},
		{"empty process", config.Trigger{Kind: config.TriggerAppStart, Value: " "}, "", true},
		{"bad time", config.Trigger{Kind: config.TriggerAtTime, Value: "9am"}, "", true},
		{"short time", config.Trigger{Kind: config.TriggerAtTime, Value: "9:00"}, "", true},
		{"bad threshold", config.Trigger{Kind: config.TriggerCPUAbove, Value: "high"}, "", true},
		{"unknown", config.Trigger{Kind: "disk_full", Value: "/"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.trigger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if c.String() != tt.want {
				t.Errorf("String() = %q, want %q", c.String(), tt.want)
			}
			if c.Kind() != tt.trigger.Kind {
				t.Errorf("Kind() = %q, want %q", c.Kind(), tt.trigger.Kind)
			}
		})
	}
}

func TestNew_UnknownKindIsSentinel(t *testing.T) {
	_, err := New(config.Trigger{Kind: "disk_full"})
	if !errors.Is(err, config.ErrUnknownTrigger) {
		t.Errorf("New() error = %v, want ErrUnknownTrigger", err)
	}
}

func TestHolds(t *testing.T) {
	ctx := context.Background()
	noon := time.Date(2024, 3, 5, 12, 0, 30, 0, time.Local)

	tests := []struct {
		name  string
		cond  Condition
		setup func(f *probe.Fake)
		now   time.Time
		want  bool
	}{
		{"app_start running", &Process{Name: "chrome", Running: true}, func(f *probe.Fake) { f.SetRunning("chrome", true) }, noon, true},
		{"app_start not running", &Process{Name: "chrome", Running: true}, func(f *probe.Fake) {}, noon, false},
		{"app_exit not running", &Process{Name: "zoom", Running: false}, func(f *probe.Fake) {}, noon, true},
		{"app_exit running", &Process{Name: "zoom", Running: false}, func(f *probe.Fake) { f.SetRunning("zoom", true) }, noon, false},

		{"at_time same minute", &AtTime{HHMM: "12:00"}, nil, noon, true},
		{"at_time end of minute", &AtTime{HHMM: "12:00"}, nil, noon.Add(29 * time.Second), true},
		{"at_time next minute", &AtTime{HHMM: "12:00"}, nil, noon.Add(30 * time.Second), false},
		{"at_time minute before", &AtTime{HHMM: "12:00"}, nil, noon.Add(-31 * time.Second), false},

		{"battery below", &BatteryBelow{Percent: 20}, func(f *probe.Fake) { f.SetBattery(19.9) }, noon, true},
		{"battery equal", &BatteryBelow{Percent: 20}, func(f *probe.Fake) { f.SetBattery(20) }, noon, false},
		{"no battery", &BatteryBelow{Percent: 20}, func(f *probe.Fake) { f.ClearBattery() }, noon, false},

		{"cpu above", &CPUAbove{Percent: 80}, func(f *probe.Fake) { f.SetCPU(80.1) }, noon, true},
		{"cpu equal", &CPUAbove{Percent: 80}, func(f *probe.Fake) { f.SetCPU(80) }, noon, false},

		{"network above", &NetworkAbove{KBps: 100}, func(f *probe.Fake) { f.SetNetwork(102401, 0) }, noon, true},
		{"network equal", &NetworkAbove{KBps: 100}, func(f *probe.Fake) { f.SetNetwork(102400, 0) }, noon, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := probe.NewFake()
			if tt.setup != nil {
				tt.setup(f)
			}
			got, err := tt.cond.Holds(ctx, tt.now, f)
			if err != nil {
				t.Fatalf("Holds() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Holds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHolds_ProbeError(t *testing.T) {
	f := probe.NewFake()
	f.SetReadError(probe.ErrFake)
	ctx := context.Background()

	for _, c := range []Condition{
		&Process{Name: "x", Running: true},
		&CPUAbove{Percent: 0},
		&NetworkAbove{KBps: 0},
	} {
		ok, err := c.Holds(ctx, time.Now(), f)
		if ok || !errors.Is(err, probe.ErrFake) {
			t.Errorf("%s: Holds() = %v, %v; want false, ErrFake", c, ok, err)
		}
	}
}

func TestAllHold(t *testing.T) {
	ctx := context.Background()
	f := probe.NewFake()
	f.SetRunning("chrome", true)
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.Local)

	ok, failed, err := AllHold(ctx, now, f, nil)
	if !ok || failed != nil || err != nil {
		t.Errorf("AllHold(empty) = %v, %v, %v; want true, nil, nil", ok, failed, err)
	}

	conds := []Condition{&Process{Name: "chrome", Running: true}, &AtTime{HHMM: "09:00"}}
	if ok, _, _ := AllHold(ctx, now, f, conds); !ok {
		t.Error("AllHold() = false, want true")
	}

	// The first unsatisfied condition stops evaluation: the CPU is never read.
	f2 := probe.NewFake()
	conds = []Condition{&Process{Name: "chrome", Running: true}, &CPUAbove{Percent: -1}}
	ok, failed, _ = AllHold(ctx, now, f2, conds)
	if ok {
		t.Error("AllHold() = true, want false")
	}
	if failed != conds[0] {
		t.Errorf("failed condition = %v, want %v", failed, conds[0])
	}
	if f2.Reads() != 1 {
		t.Errorf("expected 1 probe read after short-circuit, got %d", f2.Reads())
	}
}

func TestCompile(t *testing.T) {
	conds, err := Compile([]config.Trigger{
		{Kind: config.TriggerAppStart, Value: "chrome"},
		{Kind: config.TriggerCPUAbove, Value: "50"},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(conds) != 2 {
		t.Fatalf("Compile() = %d conditions, want 2", len(conds))
	}

	_, err = Compile([]config.Trigger{
		{Kind: config.TriggerAppStart, Value: "chrome"},
		{Kind: config.TriggerAtTime, Value: "25:99"},
	})
	if err == nil {
		t.Error("expected error for invalid at_time")
	}
}
