// internal/monitor/sampler.go
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/colebrumley/appflow/internal/logging"
	"github.com/colebrumley/appflow/internal/metrics"
	"github.com/colebrumley/appflow/internal/probe"
)

const (
	// DefaultInterval is used when Start is given a non-positive interval.
	DefaultInterval = 30 * time.Second
	// StopTimeout bounds how long Stop waits for the sampling goroutine.
	StopTimeout = 5 * time.Second
	// cpuSample is how long each CPU reading measures.
	cpuSample = time.Second
)

// Sink receives samples. *state.Recorder satisfies it.
type Sink interface {
	RecordSystemMetrics(cpu, memory float64, battery *float64, network float64)
}

// Sampler periodically reads system metrics and hands them to a Sink.
// It owns its own network meter, separate from the one network_above
// triggers use.
type Sampler struct {
	reader  probe.Reader
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	net     *probe.NetMeter

	mu      sync.Mutex
	running bool
	stopped bool // set by Stop; no sample is delivered after it
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a sampler. sink may be nil, in which case samples only reach
// the metrics gauges.
func New(reader probe.Reader, sink Sink, logger *slog.Logger, m *metrics.Metrics) *Sampler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sampler{
		reader:  reader,
		sink:    sink,
		logger:  logger,
		metrics: m,
		net:     probe.NewNetMeter(reader.NetworkBytes),
	}
}

// Start begins sampling every interval. Calling Start on a running sampler
// is a no-op.
func (s *Sampler) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.stopped = false
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, interval, s.done)
	s.logger.Info("performance sampler started", "interval", interval)
}

// Stop cancels sampling and waits up to StopTimeout for the goroutine to
// exit. Once Stop returns nothing more is recorded, even if a probe read
// is still in flight.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		s.logger.Info("performance sampler stopped")
	case <-time.After(StopTimeout):
		s.logger.Warn("performance sampler did not stop in time", "timeout", StopTimeout)
	}
}

// Running reports whether the sampler is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sampler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	// Seed the meter so the first recorded sample has a real rate.
	if _, err := s.net.Rate(ctx); err != nil {
		s.logger.Debug("seeding network meter failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

// Sample takes one reading and delivers it. It is exported for callers
// that want a reading outside the ticker.
func (s *Sampler) Sample(ctx context.Context) {
	s.sample(ctx)
}

func (s *Sampler) sample(ctx context.Context) {
	cpu, err := s.reader.CPUPercent(ctx, cpuSample)
	if err != nil {
		s.logger.Warn("sampling cpu failed", "error", err)
		return
	}
	mem, err := s.reader.MemoryPercent(ctx)
	if err != nil {
		s.logger.Warn("sampling memory failed", "error", err)
		return
	}
	rate, err := s.net.Rate(ctx)
	if err != nil {
		s.logger.Warn("sampling network failed", "error", err)
		return
	}
	var battery *float64
	if pct, ok := s.reader.BatteryPercent(ctx); ok {
		battery = &pct
	}

	// Hold the lock while delivering so Stop cannot return in between.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || ctx.Err() != nil {
		return
	}
	s.metrics.ObserveSample(cpu, mem, battery, rate)
	if s.sink != nil {
		s.sink.RecordSystemMetrics(cpu, mem, battery, rate)
	}
}
