// internal/probe/system.go
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// System is the Probe backed by the local machine.
type System struct {
	logger *slog.Logger
	net    *NetMeter
	goos   string
}

// NewSystem creates a probe for the running host.
func NewSystem(logger *slog.Logger) *System {
	s := &System{logger: logger, goos: runtime.GOOS}
	s.net = NewNetMeter(s.NetworkBytes)
	return s
}

func (s *System) IsProcessRunning(ctx context.Context, name string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("listing processes: %w", err)
	}
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// exited while we were iterating, or not ours to inspect
			continue
		}
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *System) BatteryPercent(_ context.Context) (float64, bool) {
	batteries, err := battery.GetAll()
	if err != nil && len(batteries) == 0 {
		return 0, false
	}
	var current, full float64
	for _, b := range batteries {
		if b == nil {
			continue
		}
		current += b.Current
		full += b.Full
	}
	if full <= 0 {
		return 0, false
	}
	return current / full * 100, true
}

func (s *System) CPUPercent(ctx context.Context, sample time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, sample, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu: %w", err)
	}
	if len(pcts) == 0 {
		return 0, errors.New("reading cpu: no data")
	}
	return pcts[0], nil
}

func (s *System) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading memory: %w", err)
	}
	return vm.UsedPercent, nil
}

func (s *System) NetworkBytes(ctx context.Context) (uint64, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("reading network counters: %w", err)
	}
	if len(counters) == 0 {
		return 0, errors.New("reading network counters: no data")
	}
	return counters[0].BytesSent + counters[0].BytesRecv, nil
}

func (s *System) NetworkBytesPerSec(ctx context.Context) (float64, error) {
	return s.net.Rate(ctx)
}

// Launch starts command through the platform shell and does not wait for it.
// The child outlives ctx.
func (s *System) Launch(_ context.Context, command string) error {
	var cmd *exec.Cmd
	if s.goos == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching %q: %w", command, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			s.logger.Debug("launched command exited", "command", command, "error", err)
		}
	}()
	return nil
}

func (s *System) KillByName(ctx context.Context, name string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("listing processes: %w", err)
	}
	killed := false
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil || n != name {
			continue
		}
		if err := p.TerminateWithContext(ctx); err != nil {
			s.logger.Debug("terminate failed", "pid", p.Pid, "name", name, "error", err)
			continue
		}
		killed = true
	}
	return killed, nil
}

// Notify shows a desktop notification. Platforms without a notifier get a
// log line instead.
func (s *System) Notify(ctx context.Context, message string) error {
	var cmd *exec.Cmd
	switch s.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.CommandContext(ctx, "notify-send", NotificationTitle, message)
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s",
			appleScriptString(message), appleScriptString(NotificationTitle))
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	default:
		s.logger.Info("notification", "message", message)
		return nil
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// OpenTarget opens a URL or path with the platform default handler.
func (s *System) OpenTarget(ctx context.Context, target string) error {
	var cmd *exec.Cmd
	switch s.goos {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("opening %s: %w: %s", target, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// PathExists reports whether target names an existing file or directory.
func PathExists(target string) bool {
	_, err := os.Stat(target)
	return err == nil
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
