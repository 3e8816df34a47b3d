// internal/logging/eventlog.go
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventTimeLayout is the timestamp format of event log lines.
const EventTimeLayout = "2006-01-02 15:04:05"

// EventLog is the append-only text log of engine activity. Each entry is a
// single line "[YYYY-MM-DD HH:MM:SS] message". Launch entries are the input
// of the workflow miner, so the line shape must not change.
//
// Write failures never reach the caller; they are reported once per failure
// on the structured logger.
type EventLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	logger *slog.Logger
	now    func() time.Time
}

// OpenEventLog appends to the event log at path, creating it if needed.
func OpenEventLog(path string, logger *slog.Logger) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	el := NewEventLog(f, logger)
	el.closer = f
	return el, nil
}

// NewEventLog writes event lines to w. A nil w yields a log that only
// mirrors to the structured logger.
func NewEventLog(w io.Writer, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = Discard()
	}
	return &EventLog{w: w, logger: logger, now: time.Now}
}

// SetClock overrides the timestamp source.
func (e *EventLog) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// Log appends one entry and mirrors it at debug level.
func (e *EventLog) Log(msg string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Debug("event", "message", msg)
	if e.w == nil {
		return
	}
	line := FormatEvent(e.now(), msg)
	if _, err := io.WriteString(e.w, line); err != nil {
		e.logger.Warn("event log write failed", "error", err)
	}
}

// Logf is Log with formatting.
func (e *EventLog) Logf(format string, args ...any) {
	e.Log(fmt.Sprintf(format, args...))
}

// Close closes the underlying file when the log owns one.
func (e *EventLog) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closer.Close()
}

// FormatEvent renders a single event line including the trailing newline.
func FormatEvent(ts time.Time, msg string) string {
	return "[" + ts.Format(EventTimeLayout) + "] " + msg + "\n"
}
