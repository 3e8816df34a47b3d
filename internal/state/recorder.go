// internal/state/recorder.go
package state

import (
	"log/slog"
	"time"

	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/security"
)

// Recorder is the write path used by the scheduler and the sampler. It
// never reports failure to its caller: analytics must not stop rules from
// running. Write errors are logged and counted. A Recorder with a nil DB
// drops everything.
type Recorder struct {
	db      *DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRecorder wraps db. db may be nil when analytics are disabled or the
// store could not be opened.
func NewRecorder(db *DB, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger, metrics: m, now: time.Now}
}

// Enabled reports whether records are being persisted.
func (r *Recorder) Enabled() bool {
	return r != nil && r.db != nil
}

// DB returns the underlying store, or nil.
func (r *Recorder) DB() *DB {
	if r == nil {
		return nil
	}
	return r.db
}

// RecordExecution appends one execution record. The record's timestamp is
// the start of the execution, duration before now.
func (r *Recorder) RecordExecution(ruleName string, success bool, duration time.Duration, triggerType, errMsg string) {
	if !r.Enabled() {
		return
	}
	rec := ExecutionRecord{
		RuleName:    ruleName,
		TriggerType: triggerType,
		Success:     success,
		Timestamp:   r.now().Add(-duration),
		Duration:    duration,
		Error:       security.ScrubOutput(errMsg),
	}
	if _, err := r.db.RecordExecution(rec); err != nil {
		r.logger.Warn("failed to record execution", "rule", ruleName, "error", err)
		r.metrics.RecordError("executions")
	}
}

// RecordSystemMetrics appends one performance sample.
func (r *Recorder) RecordSystemMetrics(cpu, memory float64, battery *float64, network float64) {
	if !r.Enabled() {
		return
	}
	s := SystemSample{
		Timestamp: r.now(),
		CPU:       cpu,
		Memory:    memory,
		Battery:   battery,
		Network:   network,
	}
	if err := r.db.RecordSystemMetrics(s); err != nil {
		r.logger.Warn("failed to record system metrics", "error", err)
		r.metrics.RecordError("system_metrics")
	}
}
