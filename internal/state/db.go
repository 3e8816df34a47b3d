// internal/state/db.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ExecutionRecord is one rule execution attempt.
type ExecutionRecord struct {
	ID          int64         `json:"id"`
	RunID       string        `json:"run_id"`
	RuleName    string        `json:"rule_name"`
	TriggerType string        `json:"trigger_type"`
	Success     bool          `json:"success"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
}

// State renders Success the way history filters spell it.
func (r ExecutionRecord) State() string {
	if r.Success {
		return "success"
	}
	return "failure"
}

// SystemSample is one performance sample.
type SystemSample struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       float64   `json:"cpu_percent"`
	Memory    float64   `json:"memory_percent"`
	Battery   *float64  `json:"battery_percent"` // nil without a battery
	Network   float64   `json:"network_bytes_per_sec"`
}

// DB is the analytics store. Rows are only ever appended or aged out.
type DB struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers
	now func() time.Time
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS executions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    rule_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    success BOOLEAN NOT NULL,
    duration_seconds REAL NOT NULL,
    trigger_type TEXT NOT NULL,
    error TEXT
);

CREATE TABLE IF NOT EXISTS system_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER NOT NULL,
    cpu_percent REAL NOT NULL,
    memory_percent REAL NOT NULL,
    battery_percent REAL,
    network_bytes_per_sec REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_rule ON executions(rule_name);
CREATE INDEX IF NOT EXISTS idx_executions_timestamp ON executions(timestamp);
CREATE INDEX IF NOT EXISTS idx_system_metrics_timestamp ON system_metrics(timestamp);
`

// Open opens or creates an analytics database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: SQLite allows a single writer, and the pragmas below
	// are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			db.Close()
			return nil, fmt.Errorf("recording schema version: %w", err)
		}
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// SetClock overrides the time source used for period windows and cleanup.
func (d *DB) SetClock(now func() time.Time) {
	d.now = now
}

// RecordExecution appends an execution record and returns its row ID. A
// missing RunID is generated.
func (d *DB) RecordExecution(rec ExecutionRecord) (int64, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = d.now()
	}
	var errStr *string
	if rec.Error != "" {
		errStr = &rec.Error
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec(`
		INSERT INTO executions
		(run_id, rule_name, timestamp, success, duration_seconds, trigger_type, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.RuleName, rec.Timestamp.UnixMilli(), rec.Success,
		rec.Duration.Seconds(), rec.TriggerType, errStr,
	)
	if err != nil {
		return 0, fmt.Errorf("recording execution: %w", err)
	}
	return result.LastInsertId()
}

// RecordSystemMetrics appends a performance sample.
func (d *DB) RecordSystemMetrics(s SystemSample) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO system_metrics
		(timestamp, cpu_percent, memory_percent, battery_percent, network_bytes_per_sec)
		VALUES (?, ?, ?, ?, ?)`,
		s.Timestamp.UnixMilli(), s.CPU, s.Memory, s.Battery, s.Network,
	)
	if err != nil {
		return fmt.Errorf("recording system metrics: %w", err)
	}
	return nil
}

// GetHistory retrieves execution history filtered by rule name and/or state
// ("success" or "failure"), newest first.
func (d *DB) GetHistory(ruleName, state string, limit int) ([]ExecutionRecord, error) {
	query := "SELECT id, run_id, rule_name, timestamp, success, duration_seconds, trigger_type, error FROM executions WHERE 1=1"
	var args []any

	if ruleName != "" {
		query += " AND rule_name = ?"
		args = append(args, ruleName)
	}
	switch state {
	case "":
	case "success":
		query += " AND success = 1"
	case "failure":
		query += " AND success = 0"
	default:
		return nil, fmt.Errorf("unknown state filter %q", state)
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var r ExecutionRecord
		var ts int64
		var secs float64
		var errStr sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.RuleName, &ts, &r.Success,
			&secs, &r.TriggerType, &errStr); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		r.Duration = time.Duration(secs * float64(time.Second))
		r.Error = errStr.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetLastState returns "success", "failure", or "" for a rule's most recent
// execution.
func (d *DB) GetLastState(ruleName string) (string, error) {
	var success bool
	err := d.db.QueryRow(
		"SELECT success FROM executions WHERE rule_name = ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		ruleName,
	).Scan(&success)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting last state: %w", err)
	}
	return ExecutionRecord{Success: success}.State(), nil
}

// Cleanup removes executions and samples older than retentionDays and
// returns how many rows were deleted.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	cutoff := d.now().AddDate(0, 0, -retentionDays).UnixMilli()

	d.mu.Lock()
	defer d.mu.Unlock()

	var total int64
	for _, table := range []string{"executions", "system_metrics"} {
		result, err := d.db.Exec("DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("cleaning up %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}
