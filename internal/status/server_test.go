// internal/status/server_test.go
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/colebrumley/appflow/internal/engine"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/state"
	"github.com/google/go-cmp/cmp"
)

type fakeEngine struct {
	stats engine.Stats
	rules []engine.RuleInfo
}

func (f *fakeEngine) Stats() engine.Stats      { return f.stats }
func (f *fakeEngine) Rules() []engine.RuleInfo { return f.rules }

func newTestServer(t *testing.T, opts Options) (*Server, *state.DB) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := &fakeEngine{
		stats: engine.Stats{TotalRules: 2, EnabledRules: 1, AnalyticsAvailable: true, State: "sleeping", Cycles: 7},
		rules: []engine.RuleInfo{
			{Name: "Coding setup", Enabled: true, Triggers: 2, Actions: 3, CooldownSeconds: 300},
			{Name: "Low battery", Enabled: false, Triggers: 1, Actions: 1},
		},
	}
	return New(eng, db, opts), db
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := get(t, s.Handler(), "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got engine.Stats
	decode(t, rec, &got)
	if got.TotalRules != 2 || got.State != "sleeping" || got.Cycles != 7 {
		t.Errorf("unexpected stats %+v", got)
	}
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", origin)
	}
}

func TestRules(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := get(t, s.Handler(), "/api/rules")

	var got struct {
		Rules []struct {
			Name     string `json:"name"`
			Enabled  bool   `json:"enabled"`
			Triggers int    `json:"triggers"`
			Actions  int    `json:"actions"`
		} `json:"rules"`
	}
	decode(t, rec, &got)
	if len(got.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(got.Rules))
	}
	if r := got.Rules[0]; r.Name != "Coding setup" || !r.Enabled || r.Triggers != 2 || r.Actions != 3 {
		t.Errorf("unexpected rule %+v", r)
	}
}

func TestAnalytics(t *testing.T) {
	s, db := newTestServer(t, Options{})
	if _, err := db.RecordExecution(state.ExecutionRecord{RuleName: "Coding setup", Success: true, Duration: time.Second}); err != nil {
		t.Fatal(err)
	}

	rec := get(t, s.Handler(), "/api/analytics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got state.Rollup
	decode(t, rec, &got)
	if got.Period != "week" {
		t.Errorf("default period = %q, want week", got.Period)
	}
	if got.MostActiveRule != "Coding setup" || len(got.ExecutionStats) != 1 {
		t.Errorf("unexpected rollup %+v", got)
	}

	rec = get(t, s.Handler(), "/api/analytics?period=all")
	decode(t, rec, &got)
	if got.Period != "all" {
		t.Errorf("period = %q, want all", got.Period)
	}

	rec = get(t, s.Handler(), "/api/analytics?period=decade")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown period status = %d, want 400", rec.Code)
	}
}

func TestAnalytics_Unavailable(t *testing.T) {
	s := New(&fakeEngine{}, nil, Options{})
	for _, path := range []string{"/api/analytics", "/api/history"} {
		if rec := get(t, s.Handler(), path); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestHistory(t *testing.T) {
	s, db := newTestServer(t, Options{})
	now := time.Now()
	db.RecordExecution(state.ExecutionRecord{RuleName: "a", Success: true, Timestamp: now.Add(-time.Minute)})
	db.RecordExecution(state.ExecutionRecord{RuleName: "b", Success: false, Timestamp: now, Error: "boom"})

	rec := get(t, s.Handler(), "/api/history?state=failure")
	var got struct {
		History []historyEntry `json:"history"`
	}
	decode(t, rec, &got)
	if len(got.History) != 1 || got.History[0].RuleName != "b" || got.History[0].Error != "boom" {
		t.Errorf("unexpected history %+v", got.History)
	}

	if rec := get(t, s.Handler(), "/api/history?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
	if rec := get(t, s.Handler(), "/api/history?state=pending"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad state status = %d, want 400", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := get(t, s.Handler(), "/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var got map[string]string
	decode(t, rec, &got)
	if diff := cmp.Diff(map[string]string{"error": "Not found"}, got); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	m.ObserveCycle(time.Millisecond)
	s, _ := newTestServer(t, Options{Metrics: m})

	rec := get(t, s.Handler(), "/health")
	var health map[string]any
	decode(t, rec, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	rec = get(t, s.Handler(), "/metrics")
	if !strings.Contains(rec.Body.String(), "appflow_evaluation_cycles_total 1") {
		t.Errorf("metrics output missing cycle counter:\n%s", rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Options{RequestsPerMinute: 10})
	h := s.Handler()
	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := get(t, h, "/health"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	s, _ := newTestServer(t, Options{AccessLog: &buf})
	get(t, s.Handler(), "/health")
	if !strings.Contains(buf.String(), "GET /health") {
		t.Errorf("access log = %q", buf.String())
	}
}

func TestLimitConcurrency(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	h := limitConcurrency(1, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	}))

	go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("queued request status = %d, want 503 after its context expired", rec.Code)
	}
	close(release)
}

func TestRun_Shutdown(t *testing.T) {
	s, _ := newTestServer(t, Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
