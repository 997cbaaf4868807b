// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks ops HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ops_request_duration_seconds",
			Help:    "Ops HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total ops HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ops_requests_total",
			Help: "Total ops HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks inbound messages by how they were handled.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Inbound messages by outcome",
		},
		[]string{"outcome"},
	)

	// CompletionDuration tracks the full completion call including retries.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "LLM completion duration including retries",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider", "result"},
	)

	// CompletionAttemptsTotal tracks individual upstream attempts.
	CompletionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_completion_attempts_total",
			Help: "Upstream completion attempts by result",
		},
		[]string{"provider", "result"},
	)

	// ChunksSent tracks outbound message fragments.
	ChunksSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_chunks_sent_total",
			Help: "Outbound message fragments sent",
		},
	)

	// ActiveChannels tracks channels holding conversation state.
	ActiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_channels",
			Help: "Channels with a conversation buffer",
		},
	)

	// EvictionsTotal tracks channels dropped by the idle sweep.
	EvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_evictions_total",
			Help: "Channels evicted for inactivity",
		},
	)

	// GatewayReconnectsTotal tracks gateway reconnect attempts.
	GatewayReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_reconnects_total",
			Help: "Gateway reconnect attempts",
		},
		[]string{"gateway"},
	)
)

// RecordRequest records metrics for an ops HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordMessage records how an inbound message was handled.
func RecordMessage(outcome string) {
	MessagesTotal.WithLabelValues(outcome).Inc()
}

// RecordCompletion records metrics for a completion call.
func RecordCompletion(provider, result string, duration float64) {
	CompletionDuration.WithLabelValues(provider, result).Observe(duration)
}

// RecordAttempt records one upstream completion attempt.
func RecordAttempt(provider, result string) {
	CompletionAttemptsTotal.WithLabelValues(provider, result).Inc()
}
