// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "appflow"

// Metrics holds the engine's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so components can be built without one.
type Metrics struct {
	registry *prometheus.Registry

	// Scheduler
	Cycles        prometheus.Counter
	CycleDuration prometheus.Histogram
	RulesLoaded   prometheus.Gauge
	RulesEnabled  prometheus.Gauge
	ProbeErrors   *prometheus.CounterVec

	// Executor
	RuleExecutions    *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActionsExecuted   *prometheus.CounterVec

	// Sampler
	Samples     prometheus.Counter
	CPUPercent  prometheus.Gauge
	MemPercent  prometheus.Gauge
	NetworkRate prometheus.Gauge
	Battery     prometheus.Gauge

	// Recorder
	RecordErrors *prometheus.CounterVec
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.Cycles = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluation_cycles_total",
		Help:      "Completed evaluation passes over the rule list",
	})
	m.CycleDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_cycle_duration_seconds",
		Help:      "Wall time of one evaluation pass including executed actions",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	m.RulesLoaded = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rules_loaded",
		Help:      "Rules in the active rule list",
	})
	m.RulesEnabled = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rules_enabled",
		Help:      "Enabled rules in the active rule list",
	})
	m.ProbeErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_errors_total",
		Help:      "Trigger checks that failed because the probe could not answer",
	}, []string{"trigger"})

	m.RuleExecutions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rule_executions_total",
		Help:      "Rule executions by outcome",
	}, []string{"rule", "state"})
	m.ExecutionDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rule_execution_duration_seconds",
		Help:      "Time to run a rule's action sequence",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"rule"})
	m.ActionsExecuted = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Actions run by kind and outcome",
	}, []string{"kind", "state"})

	m.Samples = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "system_samples_total",
		Help:      "System metric samples taken by the performance sampler",
	})
	m.CPUPercent = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "system_cpu_percent",
		Help:      "Last sampled CPU usage",
	})
	m.MemPercent = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "system_memory_percent",
		Help:      "Last sampled memory usage",
	})
	m.NetworkRate = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "system_network_bytes_per_second",
		Help:      "Last sampled network throughput",
	})
	m.Battery = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "system_battery_percent",
		Help:      "Last sampled battery level, -1 when no battery is present",
	})

	m.RecordErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analytics_write_errors_total",
		Help:      "Analytics writes that failed and were dropped",
	}, []string{"table"})

	return m
}

// Handler serves this registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) SetRules(loaded, enabled int) {
	if m == nil {
		return
	}
	m.RulesLoaded.Set(float64(loaded))
	m.RulesEnabled.Set(float64(enabled))
}

func (m *Metrics) ProbeError(trigger string) {
	if m == nil {
		return
	}
	m.ProbeErrors.WithLabelValues(trigger).Inc()
}

func (m *Metrics) ObserveExecution(rule, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.RuleExecutions.WithLabelValues(rule, state).Inc()
	m.ExecutionDuration.WithLabelValues(rule).Observe(d.Seconds())
}

func (m *Metrics) ObserveAction(kind string, ok bool) {
	if m == nil {
		return
	}
	state := "success"
	if !ok {
		state = "failure"
	}
	m.ActionsExecuted.WithLabelValues(kind, state).Inc()
}

// ObserveSample records a system sample. battery is nil without a battery.
func (m *Metrics) ObserveSample(cpu, mem float64, battery *float64, net float64) {
	if m == nil {
		return
	}
	m.Samples.Inc()
	m.CPUPercent.Set(cpu)
	m.MemPercent.Set(mem)
	m.NetworkRate.Set(net)
	if battery != nil {
		m.Battery.Set(*battery)
	} else {
		m.Battery.Set(-1)
	}
}

func (m *Metrics) RecordError(table string) {
	if m == nil {
		return
	}
	m.RecordErrors.WithLabelValues(table).Inc()
}
