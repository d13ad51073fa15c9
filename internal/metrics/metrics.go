// Package metrics exposes Prometheus collectors for the control loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors incremented by the orchestrator and the
// action executor. All methods are nil-safe so components can run without
// metrics wired.
type Metrics struct {
	cyclesTotal      *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	decisionsTotal   *prometheus.CounterVec
	actionStepsTotal *prometheus.CounterVec
	detectorFailures *prometheus.CounterVec
	rowsQuarantined  prometheus.Counter
}

// New registers the collectors on the given registerer (the default
// registry when nil) and returns them.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipewarden_cycles_total",
			Help: "Monitoring cycles run, by result.",
		}, []string{"result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipewarden_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full monitoring cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipewarden_decisions_total",
			Help: "Decisions made, by action and priority.",
		}, []string{"action", "priority"}),
		actionStepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipewarden_action_steps_total",
			Help: "Executor sub-steps attempted, by step and result.",
		}, []string{"step", "result"}),
		detectorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipewarden_detector_failures_total",
			Help: "Detector calls absorbed as no-alert, by detector.",
		}, []string{"detector"}),
		rowsQuarantined: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipewarden_rows_quarantined_total",
			Help: "Rows copied into the quarantine table.",
		}),
	}
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(result string, seconds float64) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(seconds)
}

// ObserveDecision records one decision.
func (m *Metrics) ObserveDecision(action, priority string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(action, priority).Inc()
}

// ObserveStep records one executor sub-step attempt.
func (m *Metrics) ObserveStep(step string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.actionStepsTotal.WithLabelValues(step, result).Inc()
}

// ObserveDetectorFailure records a detector call absorbed as no-alert.
func (m *Metrics) ObserveDetectorFailure(detector string) {
	if m == nil {
		return
	}
	m.detectorFailures.WithLabelValues(detector).Inc()
}

// ObserveQuarantinedRows records rows copied to quarantine.
func (m *Metrics) ObserveQuarantinedRows(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsQuarantined.Add(float64(n))
}
