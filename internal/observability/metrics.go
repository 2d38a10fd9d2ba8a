package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call lifecycle metrics
	callsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answering_machine_calls_initiated_total",
		Help: "Outbound call attempts by outcome",
	}, []string{"outcome"}) // outcome: success, invalid_argument, provider_rejected, provider_unavailable

	statusCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answering_machine_status_callbacks_total",
		Help: "Provider status callbacks by result",
	}, []string{"result"}) // result: applied, orphan, stale, invalid, error

	statusQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answering_machine_status_queries_total",
		Help: "Status queries by source",
	}, []string{"source"}) // source: local, provider, not_found, error

	// Provider metrics
	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "answering_machine_provider_latency_seconds",
		Help:    "Latency of outbound provider requests in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"provider", "operation"})

	providerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answering_machine_provider_errors_total",
		Help: "Failed provider requests",
	}, []string{"provider", "operation", "kind"})
)

// RecordCallInitiated counts one InitiateCall outcome.
func RecordCallInitiated(outcome string) {
	callsInitiated.WithLabelValues(outcome).Inc()
}

// RecordStatusCallback counts one status callback by how it was handled.
func RecordStatusCallback(result string) {
	statusCallbacks.WithLabelValues(result).Inc()
}

// RecordStatusQuery counts one status query by where the answer came from.
func RecordStatusQuery(source string) {
	statusQueries.WithLabelValues(source).Inc()
}

// ObserveProvider records the latency of a provider request started at start,
// and counts it as an error when kind is non-empty.
func ObserveProvider(provider, operation string, start time.Time, kind string) {
	providerLatency.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	if kind != "" {
		providerErrors.WithLabelValues(provider, operation, kind).Inc()
	}
}
