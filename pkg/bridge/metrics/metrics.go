// Package metrics exposes the bridge's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	registry *prometheus.Registry

	LegsActive    prometheus.Gauge
	LegsTotal     *prometheus.CounterVec
	LegDuration   *prometheus.HistogramVec
	CascadesTotal *prometheus.CounterVec

	LeaseConflictsTotal prometheus.Counter
	TranslationsTotal   *prometheus.CounterVec
	RelayedTokensTotal  *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered under
// namespace (default "callbridge").
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "callbridge"
	}

	registry := prometheus.NewRegistry()

	legsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "legs_active",
		Help:      "Number of call legs with a live realtime channel",
	})

	legsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "legs_total",
		Help:      "Total call legs by party",
	}, []string{"party"})

	legDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "leg_duration_seconds",
		Help:      "Call leg duration in seconds",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"party"})

	cascadesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cascades_total",
		Help:      "Disconnect cascade outcomes",
	}, []string{"result"})

	leaseConflictsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_conflicts_total",
		Help:      "Correlation lease creations rejected by a live lease",
	})

	translationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translations_total",
		Help:      "Translation calls by provider and status",
	}, []string{"provider", "status"})

	relayedTokensTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relayed_tokens_total",
		Help:      "Text messages delivered to legs",
	}, []string{"party"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors by component and kind",
	}, []string{"component", "kind"})

	registry.MustRegister(
		legsActive,
		legsTotal,
		legDuration,
		cascadesTotal,
		leaseConflictsTotal,
		translationsTotal,
		relayedTokensTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:            registry,
		LegsActive:          legsActive,
		LegsTotal:           legsTotal,
		LegDuration:         legDuration,
		CascadesTotal:       cascadesTotal,
		LeaseConflictsTotal: leaseConflictsTotal,
		TranslationsTotal:   translationsTotal,
		RelayedTokensTotal:  relayedTokensTotal,
		ErrorsTotal:         errorsTotal,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLegStart records a leg's realtime channel opening.
func (m *Metrics) RecordLegStart(party string) {
	if m == nil {
		return
	}
	m.LegsActive.Inc()
	m.LegsTotal.WithLabelValues(party).Inc()
}

// RecordLegEnd records a leg's realtime channel closing.
func (m *Metrics) RecordLegEnd(party string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LegsActive.Dec()
	m.LegDuration.WithLabelValues(party).Observe(duration.Seconds())
}

// RecordCascade records a disconnect cascade outcome: "cascaded",
// "other_already_disconnected", "unlinked", or "noop".
func (m *Metrics) RecordCascade(result string) {
	if m == nil {
		return
	}
	m.CascadesTotal.WithLabelValues(result).Inc()
}

// RecordLeaseConflict records a rejected lease creation.
func (m *Metrics) RecordLeaseConflict() {
	if m == nil {
		return
	}
	m.LeaseConflictsTotal.Inc()
}

// RecordTranslation records one translation call.
func (m *Metrics) RecordTranslation(provider, status string) {
	if m == nil {
		return
	}
	m.TranslationsTotal.WithLabelValues(provider, status).Inc()
}

// RecordRelayedToken records one text message delivered to a leg.
func (m *Metrics) RecordRelayedToken(party string) {
	if m == nil {
		return
	}
	m.RelayedTokensTotal.WithLabelValues(party).Inc()
}

// RecordError records an error by component and fault kind.
func (m *Metrics) RecordError(component, kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, kind).Inc()
}
