// internal/probe/fake_test.go
package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFake_Effects(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.SetRunning("spotify", true)
	f.Fail("launch", "broken", ErrFake)

	if err := f.Launch(ctx, "code"); err != nil {
		t.Errorf("Launch(code) error = %v", err)
	}
	if err := f.Launch(ctx, "broken"); !errors.Is(err, ErrFake) {
		t.Errorf("Launch(broken) error = %v, want ErrFake", err)
	}
	killed, err := f.KillByName(ctx, "spotify")
	if err != nil || !killed {
		t.Errorf("KillByName(spotify) = %v, %v; want true, nil", killed, err)
	}
	if running, _ := f.IsProcessRunning(ctx, "spotify"); running {
		t.Error("spotify should no longer be running")
	}
	killed, _ = f.KillByName(ctx, "spotify")
	if killed {
		t.Error("second KillByName should report nothing killed")
	}

	want := []Call{{"launch", "code"}, {"launch", "broken"}, {"kill", "spotify"}, {"kill", "spotify"}}
	if diff := cmp.Diff(want, f.Calls()); diff != "" {
		t.Errorf("Calls() mismatch (-want +got):\n%s", diff)
	}
}

func TestFake_Readings(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	if _, ok := f.BatteryPercent(ctx); ok {
		t.Error("zero fake should report no battery")
	}
	f.SetBattery(42)
	if pct, ok := f.BatteryPercent(ctx); !ok || pct != 42 {
		t.Errorf("BatteryPercent() = %v, %v; want 42, true", pct, ok)
	}

	f.SetReadError(ErrFake)
	if _, err := f.CPUPercent(ctx, 0); !errors.Is(err, ErrFake) {
		t.Errorf("CPUPercent() error = %v, want ErrFake", err)
	}
	if _, ok := f.BatteryPercent(ctx); ok {
		t.Error("BatteryPercent() should report no battery on read error")
	}
	if f.Reads() != 4 {
		t.Errorf("Reads() = %d, want 4", f.Reads())
	}
}
