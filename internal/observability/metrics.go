// Package observability provides Prometheus metrics instrumentation for the server.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// MEDIATOR METRICS
// =============================================================================

var (
	mediatorTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_mediator_turns_total",
			Help: "Total number of mediator turns",
		},
		[]string{"status"}, // status: success, error
	)

	mediatorParseFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailpilot_mediator_parse_failures_total",
			Help: "Mediator turns whose model output was not a valid slot object",
		},
	)

	mediatorSessionsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailpilot_mediator_sessions_evicted_total",
			Help: "In-memory mediator sessions evicted by TTL or capacity",
		},
	)
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_llm_calls_total",
			Help: "Total number of text-generation and transcription calls",
		},
		[]string{"operation", "model", "status"},
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailpilot_llm_duration_seconds",
			Help:    "Text-generation and transcription call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation", "model"},
	)
)

// =============================================================================
// SCHEDULER METRICS
// =============================================================================

var (
	schedulerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_scheduler_cycles_total",
			Help: "Total number of poll cycles",
		},
		[]string{"status"}, // status: success, error, panic
	)

	schedulerSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_scheduler_sends_total",
			Help: "Scheduled sends by outcome",
		},
		[]string{"outcome"}, // outcome: sent, failed, lost_claim
	)

	schedulerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailpilot_scheduler_queue_depth",
			Help: "Pending scheduled sends observed by the last cycle",
		},
	)
)

// =============================================================================
// PROVIDER METRICS
// =============================================================================

var (
	providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_provider_calls_total",
			Help: "Mail provider API calls",
		},
		[]string{"operation", "status"},
	)

	providerDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailpilot_provider_duration_seconds",
			Help:    "Mail provider API call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordMediatorTurn records the outcome of one mediator turn.
func RecordMediatorTurn(status string) {
	mediatorTurnsTotal.WithLabelValues(status).Inc()
}

// RecordMediatorParseFailure counts a model reply that could not be parsed.
func RecordMediatorParseFailure() {
	mediatorParseFailuresTotal.Inc()
}

// RecordSessionsEvicted counts evicted in-memory sessions.
func RecordSessionsEvicted(n int) {
	mediatorSessionsEvictedTotal.Add(float64(n))
}

// RecordLLMCall records a text-generation or transcription call.
func RecordLLMCall(operation, model, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(operation, model, status).Inc()
	llmDurationSeconds.WithLabelValues(operation, model).Observe(float64(durationMS) / 1000.0)
}

// RecordSchedulerCycle records the outcome of one poll cycle.
func RecordSchedulerCycle(status string, pending int) {
	schedulerCyclesTotal.WithLabelValues(status).Inc()
	schedulerQueueDepth.Set(float64(pending))
}

// RecordScheduledSend records the outcome of one due task.
func RecordScheduledSend(outcome string) {
	schedulerSendsTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderCall records a mail provider API call.
func RecordProviderCall(operation, status string, durationMS int) {
	providerCallsTotal.WithLabelValues(operation, status).Inc()
	providerDurationSeconds.WithLabelValues(operation).Observe(float64(durationMS) / 1000.0)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
