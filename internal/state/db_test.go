// internal/state/db_test.go
package state

import (
	"bytes"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test-analytics.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func TestOpen_CreatesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "analytics.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	for _, kind := range []struct{ typ, name string }{
		{"table", "executions"},
		{"table", "system_metrics"},
		{"table", "schema_version"},
		{"index", "idx_executions_rule"},
		{"index", "idx_executions_timestamp"},
		{"index", "idx_system_metrics_timestamp"},
	} {
		var name string
		err := db.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type=? AND name=?", kind.typ, kind.name,
		).Scan(&name)
		if err != nil {
			t.Errorf("%s %s not created: %v", kind.typ, kind.name, err)
		}
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.RecordExecution(ExecutionRecord{RuleName: "a", Success: true}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()
	history, err := db.GetHistory("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("expected record to survive reopen, got %d", len(history))
	}
}

func TestOpen_SchemaVersionFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.db")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	// A read-only schema_version: the table create is skipped and the
	// version insert fails.
	if _, err := raw.Exec("CREATE VIEW schema_version AS SELECT 1 AS version WHERE 0"); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	db, err := Open(path)
	if err == nil {
		db.Close()
		t.Fatal("Open() succeeded with an unwritable schema_version")
	}
	if !strings.Contains(err.Error(), "recording schema version") {
		t.Errorf("Open() error = %v", err)
	}
}

func TestRecordExecution(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	id, err := db.RecordExecution(ExecutionRecord{
		RuleName:    "Coding setup",
		TriggerType: "app_start",
		Success:     false,
		Timestamp:   now,
		Duration:    2500 * time.Millisecond,
		Error:       "{launch: code}: exec: not found",
	})
	if err != nil {
		t.Fatalf("RecordExecution() error = %v", err)
	}
	if id == 0 {
		t.Error("RecordExecution() returned id = 0, want > 0")
	}

	history, err := db.GetHistory("Coding setup", "", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 record, got %d", len(history))
	}
	got := history[0]
	if got.RunID == "" {
		t.Error("expected a generated run_id")
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
	}
	if got.Duration != 2500*time.Millisecond {
		t.Errorf("Duration = %v, want 2.5s", got.Duration)
	}
	if got.State() != "failure" || got.TriggerType != "app_start" || got.Error == "" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestRecordExecution_DuplicateRunID(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	rec := ExecutionRecord{RunID: "fixed", RuleName: "a", Success: true}
	if _, err := db.RecordExecution(rec); err != nil {
		t.Fatal(err)
	}
	if _, err := db.RecordExecution(rec); err == nil {
		t.Error("expected error recording the same run_id twice")
	}
}

func TestGetHistory_Filters(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	base := time.Now().Add(-time.Hour)
	records := []ExecutionRecord{
		{RuleName: "a", Success: true, Timestamp: base},
		{RuleName: "a", Success: false, Timestamp: base.Add(time.Minute)},
		{RuleName: "b", Success: true, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if _, err := db.RecordExecution(r); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		rule, state string
		limit       int
		want        []string
	}{
		{"", "", 0, []string{"b", "a", "a"}},
		{"a", "", 0, []string{"a", "a"}},
		{"", "success", 0, []string{"b", "a"}},
		{"a", "failure", 0, []string{"a"}},
		{"", "", 1, []string{"b"}},
	}
	for _, tt := range tests {
		history, err := db.GetHistory(tt.rule, tt.state, tt.limit)
		if err != nil {
			t.Fatalf("GetHistory(%q, %q) error = %v", tt.rule, tt.state, err)
		}
		var names []string
		for _, h := range history {
			names = append(names, h.RuleName)
		}
		if diff := cmp.Diff(tt.want, names); diff != "" {
			t.Errorf("GetHistory(%q, %q, %d) mismatch (-want +got):\n%s", tt.rule, tt.state, tt.limit, diff)
		}
	}

	if _, err := db.GetHistory("", "timeout", 0); err == nil {
		t.Error("expected error for unknown state filter")
	}
}

func TestGetLastState(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	st, err := db.GetLastState("nope")
	if err != nil || st != "" {
		t.Errorf("GetLastState(nope) = %q, %v; want \"\", nil", st, err)
	}

	now := time.Now()
	db.RecordExecution(ExecutionRecord{RuleName: "a", Success: true, Timestamp: now.Add(-time.Minute)})
	db.RecordExecution(ExecutionRecord{RuleName: "a", Success: false, Timestamp: now})

	st, err = db.GetLastState("a")
	if err != nil {
		t.Fatalf("GetLastState() error = %v", err)
	}
	if st != "failure" {
		t.Errorf("GetLastState() = %q, want failure", st)
	}
}

func TestCleanup(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	db.SetClock(func() time.Time { return now })

	db.RecordExecution(ExecutionRecord{RuleName: "old", Timestamp: now.AddDate(0, 0, -100)})
	db.RecordExecution(ExecutionRecord{RuleName: "new", Timestamp: now.AddDate(0, 0, -1)})
	db.RecordSystemMetrics(SystemSample{Timestamp: now.AddDate(0, 0, -91)})
	db.RecordSystemMetrics(SystemSample{Timestamp: now})

	deleted, err := db.Cleanup(90)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Cleanup() deleted %d rows, want 2", deleted)
	}

	history, _ := db.GetHistory("", "", 0)
	if len(history) != 1 || history[0].RuleName != "new" {
		t.Errorf("unexpected history after cleanup: %+v", history)
	}
}

func TestRollup(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	now := time.Date(2024, 6, 10, 18, 30, 0, 0, time.Local)
	db.SetClock(func() time.Time { return now })

	at := func(daysAgo int, hour int) time.Time {
		d := now.AddDate(0, 0, -daysAgo)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 15, 0, 0, time.Local)
	}
	for _, r := range []ExecutionRecord{
		{RuleName: "focus", Success: true, Duration: time.Second, Timestamp: at(1, 9)},
		{RuleName: "focus", Success: false, Duration: 3 * time.Second, Timestamp: at(2, 9)},
		{RuleName: "focus", Success: true, Duration: 2 * time.Second, Timestamp: at(3, 14)},
		{RuleName: "battery", Success: true, Duration: 0, Timestamp: at(0, 14)},
		{RuleName: "ancient", Success: true, Timestamp: at(40, 9)},
	} {
		if _, err := db.RecordExecution(r); err != nil {
			t.Fatal(err)
		}
	}
	batt := 50.0
	db.RecordSystemMetrics(SystemSample{Timestamp: at(1, 10), CPU: 10, Memory: 40, Battery: &batt, Network: 100})
	db.RecordSystemMetrics(SystemSample{Timestamp: at(1, 11), CPU: 30, Memory: 60, Network: 300})

	got, err := db.Rollup("week")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}

	avgCPU, avgMem, avgNet := 20.0, 50.0, 200.0
	want := &Rollup{
		Period: "week",
		ExecutionStats: []RuleStats{
			{RuleName: "battery", Executions: 1, AvgDurationSeconds: 0, SuccessRate: 100},
			{RuleName: "focus", Executions: 3, AvgDurationSeconds: 2, SuccessRate: 200.0 / 3},
		},
		MostActiveRule: "focus",
		SystemStats: SystemStats{
			Samples:    2,
			AvgCPU:     &avgCPU,
			AvgMemory:  &avgMem,
			AvgBattery: &batt,
			AvgNetwork: &avgNet,
		},
	}
	want.HourlyData[9] = 2
	want.HourlyData[14] = 2

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rollup(week) mismatch (-want +got):\n%s", diff)
	}

	again, err := db.Rollup("week")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("Rollup is not idempotent (-first +second):\n%s", diff)
	}

	all, err := db.Rollup("all")
	if err != nil {
		t.Fatal(err)
	}
	if len(all.ExecutionStats) != 3 {
		t.Errorf("Rollup(all) rules = %d, want 3", len(all.ExecutionStats))
	}
	if all.HourlyData[9] != 3 {
		t.Errorf("Rollup(all) hour 9 = %d, want 3", all.HourlyData[9])
	}
}

func TestRollup_Empty(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	r, err := db.Rollup("day")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if len(r.ExecutionStats) != 0 || r.MostActiveRule != "" {
		t.Errorf("expected no stats, got %+v", r)
	}
	if r.SystemStats.AvgCPU != nil || r.SystemStats.Samples != 0 {
		t.Errorf("expected empty system stats, got %+v", r.SystemStats)
	}
}

func TestRollup_UnknownPeriod(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	_, err := db.Rollup("fortnight")
	if !errors.Is(err, ErrUnknownPeriod) {
		t.Errorf("Rollup(fortnight) error = %v, want ErrUnknownPeriod", err)
	}
}

func TestConcurrentWriters(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	rec := NewRecorder(db, logging.Discard(), nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rec.RecordExecution("parallel", true, time.Millisecond, "manual", "")
		}()
		go func() {
			defer wg.Done()
			rec.RecordSystemMetrics(1, 2, nil, 3)
		}()
	}
	wg.Wait()

	history, err := db.GetHistory("parallel", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != n {
		t.Errorf("stored %d execution records, want %d", len(history), n)
	}
	seen := map[string]bool{}
	for _, h := range history {
		if seen[h.RunID] {
			t.Errorf("duplicate run_id %s", h.RunID)
		}
		seen[h.RunID] = true
	}

	r, err := db.Rollup("all")
	if err != nil {
		t.Fatal(err)
	}
	if r.SystemStats.Samples != n {
		t.Errorf("stored %d samples, want %d", r.SystemStats.Samples, n)
	}
}

func TestRecorder_ScrubsErrors(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	rec := NewRecorder(db, logging.Discard(), nil)

	rec.RecordExecution("sync", false, time.Second, "manual", "open https://x.test/?token=s3cr3t failed")

	history, _ := db.GetHistory("sync", "", 1)
	if len(history) != 1 {
		t.Fatalf("expected 1 record, got %d", len(history))
	}
	if strings.Contains(history[0].Error, "s3cr3t") {
		t.Errorf("secret persisted: %q", history[0].Error)
	}
}

func TestRecorder_SwallowsErrors(t *testing.T) {
	db := openTestDB(t)
	db.Close()

	var buf bytes.Buffer
	m := metrics.New()
	rec := NewRecorder(db, logging.NewLogger("text", "warn", &buf), m)

	rec.RecordExecution("a", true, 0, "manual", "")
	rec.RecordSystemMetrics(0, 0, nil, 0)

	if !strings.Contains(buf.String(), "failed to record execution") {
		t.Errorf("expected a logged warning, got %q", buf.String())
	}
	if got := testutil.ToFloat64(m.RecordErrors.WithLabelValues("executions")); got != 1 {
		t.Errorf("execution write errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RecordErrors.WithLabelValues("system_metrics")); got != 1 {
		t.Errorf("sample write errors = %v, want 1", got)
	}
}

func TestRecorder_Nil(t *testing.T) {
	rec := NewRecorder(nil, nil, nil)
	if rec.Enabled() {
		t.Error("recorder without a DB should be disabled")
	}
	rec.RecordExecution("a", true, 0, "manual", "")
	rec.RecordSystemMetrics(0, 0, nil, 0)

	var nilRec *Recorder
	nilRec.RecordExecution("a", true, 0, "manual", "")
	if nilRec.DB() != nil {
		t.Error("nil recorder DB() should be nil")
	}
}
