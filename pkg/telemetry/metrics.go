package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for reconciliation activity.
// A nil *Metrics is a valid no-op collector, so callers never need to
// guard their instrumentation sites.
type Metrics struct {
	registry *prometheus.Registry

	reconciles       *prometheus.CounterVec
	actions          *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
}

// NewMetrics creates a metrics collector on a private registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciles_total",
				Help:      "Total number of reconciliation cycles",
			},
			[]string{"result"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of plan actions executed",
			},
			[]string{"action", "status"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider API calls",
			},
			[]string{"operation", "status"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of provider API calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"circuit"},
		),
	}

	registry.MustRegister(
		m.reconciles,
		m.actions,
		m.providerCalls,
		m.providerDuration,
		m.breakerState,
	)
	return m
}

// RecordReconcile counts a finished reconciliation cycle.
func (m *Metrics) RecordReconcile(result string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(result).Inc()
}

// RecordAction counts one executed plan action.
func (m *Metrics) RecordAction(action, status string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, status).Inc()
}

// ObserveProviderCall records one provider API call.
func (m *Metrics) ObserveProviderCall(operation string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m.providerCalls.WithLabelValues(operation, status).Inc()
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetBreakerState publishes a circuit breaker's current state.
func (m *Metrics) SetBreakerState(circuit string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(circuit).Set(float64(state))
}

// Handler exposes the metrics registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
