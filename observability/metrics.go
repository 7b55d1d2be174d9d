package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records escrow operation activity served by the gateway.
type EscrowMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "ops",
				Name:      "requests_total",
				Help:      "Total escrow operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "ops",
				Name:      "errors_total",
				Help:      "Total escrow operation errors segmented by operation and status code.",
			}, []string{"operation", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrowd",
				Subsystem: "ops",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for escrow operation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			escrowRegistry.requests,
			escrowRegistry.errors,
			escrowRegistry.latency,
		)
	})
	return escrowRegistry
}

// Observe records one handled operation.
func (m *EscrowMetrics) Observe(operation, outcome, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	if outcome != "ok" {
		m.errors.WithLabelValues(operation, status).Inc()
	}
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}
