// Package metrics exposes Prometheus instrumentation for the evolution
// pipeline: cycle outcomes and durations, suggestion volume by containment
// level, and anomaly counts by type and severity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors. Construct once per
// process and share; all methods are safe for concurrent use.
type Metrics struct {
	cyclesTotal   *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	suggestions   *prometheus.CounterVec
	fallbacks     prometheus.Counter
	anomalies     *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	quarantines   prometheus.Counter
}

// New registers the pipeline collectors on reg and returns the handle.
// Passing nil registers on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evolution",
			Name:      "cycles_total",
			Help:      "Evolution cycles by final outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evolution",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of completed cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evolution",
			Name:      "suggestions_total",
			Help:      "Surfaced suggestions by containment level.",
		}, []string{"level"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evolution",
			Name:      "fallback_suggestions_total",
			Help:      "Suggestions produced by the emergency fallback generator.",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evolution",
			Name:      "anomalies_total",
			Help:      "Behavioral anomalies by type and severity.",
		}, []string{"type", "severity"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evolution",
			Name:      "rollbacks_total",
			Help:      "Rollback executions by result.",
		}, []string{"result"}),
		quarantines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evolution",
			Name:      "quarantines_total",
			Help:      "High-risk patterns reported for quarantine.",
		}),
	}
	reg.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.suggestions,
		m.fallbacks,
		m.anomalies,
		m.rollbacks,
		m.quarantines,
	)
	return m
}

// Nop returns a handle whose collectors are built but never registered,
// for tests and callers that do not scrape.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) CycleFinished(outcome string, d time.Duration) {
	m.cyclesTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.cycleDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) CycleSkipped() {
	m.cyclesTotal.WithLabelValues("skipped").Inc()
}

func (m *Metrics) SuggestionSurfaced(level string, fallback bool) {
	m.suggestions.WithLabelValues(level).Inc()
	if fallback {
		m.fallbacks.Inc()
	}
}

func (m *Metrics) AnomalyDetected(anomalyType, severity string) {
	m.anomalies.WithLabelValues(anomalyType, severity).Inc()
}

func (m *Metrics) RollbackExecuted(success bool) {
	result := "failed"
	if success {
		result = "succeeded"
	}
	m.rollbacks.WithLabelValues(result).Inc()
}

func (m *Metrics) QuarantineReported() {
	m.quarantines.Inc()
}
