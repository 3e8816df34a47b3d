// internal/status/server.go
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/colebrumley/appflow/internal/engine"
	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/state"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// shutdownTimeout bounds graceful shutdown of the listener.
const shutdownTimeout = 5 * time.Second

// Engine is the read-only view of the scheduler the endpoint serves.
type Engine interface {
	Stats() engine.Stats
	Rules() []engine.RuleInfo
}

// Options configures a Server.
type Options struct {
	Addr string
	// MaxConcurrent caps in-flight requests; extra requests queue.
	MaxConcurrent int
	// RequestsPerMinute caps the request rate; extra requests get 429.
	RequestsPerMinute int
	// AccessLog, when set, receives one combined-format line per request.
	AccessLog io.Writer
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Server is the read-only JSON status surface. It never touches the
// scheduler goroutine: every handler reads snapshots or the analytics DB.
type Server struct {
	engine  Engine
	db      *state.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	addr    string
	handler http.Handler
}

// New builds the server. db may be nil when analytics are disabled.
func New(e Engine, db *state.DB, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{engine: e, db: db, logger: logger, metrics: opts.Metrics, addr: opts.Addr}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics", s.handleAnalytics).Methods(http.MethodGet)
	r.HandleFunc("/api/rules", s.handleRules).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	var h http.Handler = r
	h = limitConcurrency(opts.MaxConcurrent, h)
	h = limitRate(opts.RequestsPerMinute, h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	if opts.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(opts.AccessLog, h)
	}
	s.handler = h
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting status server", "address", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"state":          st.State,
		"uptime_seconds": st.UptimeSeconds,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Analytics not available")
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}
	rollup, err := s.db.Rollup(period)
	if errors.Is(err, state.ErrUnknownPeriod) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("analytics rollup failed", "period", period, "error", err)
		writeError(w, http.StatusInternalServerError, "Analytics query failed")
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rules": s.engine.Rules()})
}

type historyEntry struct {
	RunID           string    `json:"run_id"`
	RuleName        string    `json:"rule_name"`
	TriggerType     string    `json:"trigger_type"`
	State           string    `json:"state"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Analytics not available")
		return
	}
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	records, err := s.db.GetHistory(q.Get("rule"), q.Get("state"), limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			RunID:           rec.RunID,
			RuleName:        rec.RuleName,
			TriggerType:     rec.TriggerType,
			State:           rec.State(),
			Timestamp:       rec.Timestamp,
			DurationSeconds: rec.Duration.Seconds(),
			Error:           rec.Error,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// limitConcurrency lets at most n requests run at once; the rest wait
// their turn or give up when the client goes away.
func limitConcurrency(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "Server busy")
		}
	})
}

// limitRate applies a token bucket of requestsPerMinute with a burst of a
// tenth of that.
func limitRate(requestsPerMinute int, next http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return next
	}
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), max(1, requestsPerMinute/10))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
