// Package metrics provides Prometheus metrics for the protocol service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "protocol_rag"

var (
	// GuardrailDecisions counts guardrail verdicts by decision.
	GuardrailDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_decisions_total",
			Help:      "Total number of guardrail verdicts by decision",
		},
		[]string{"decision"},
	)

	// GuardrailValidatorErrors counts validators that errored or panicked.
	GuardrailValidatorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_validator_errors_total",
			Help:      "Total number of guardrail validator failures",
		},
		[]string{"validator"},
	)

	// AuditFailures counts audit entries that were not persisted.
	AuditFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Total number of audit entries that could not be persisted",
		},
		[]string{"reason"},
	)

	// AuditQueueDepth tracks pending audit entries.
	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_depth",
			Help:      "Number of audit entries waiting to be written",
		},
	)

	// RetrievalCache counts cache lookups by result.
	RetrievalCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_cache_total",
			Help:      "Retrieval cache lookups by result",
		},
		[]string{"result"},
	)

	// RetrievalVariantFailures counts fusion variants dropped after an error.
	RetrievalVariantFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_variant_failures_total",
			Help:      "Fusion variants dropped because the embedding or search failed",
		},
		[]string{"stage"},
	)

	// FlowDuration measures orchestrator flow duration.
	FlowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_duration_seconds",
			Help:      "Duration of orchestrator flows in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"flow", "status"},
	)
)

// RecordDecision records a guardrail verdict.
func RecordDecision(decision string) {
	GuardrailDecisions.WithLabelValues(decision).Inc()
}

// RecordValidatorError records a validator failure.
func RecordValidatorError(validator string) {
	GuardrailValidatorErrors.WithLabelValues(validator).Inc()
}

// RecordAuditFailure records a dropped or failed audit entry.
func RecordAuditFailure(reason string) {
	AuditFailures.WithLabelValues(reason).Inc()
}

// RecordCacheLookup records a retrieval cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	RetrievalCache.WithLabelValues(result).Inc()
}

// RecordVariantFailure records a dropped fusion variant.
func RecordVariantFailure(stage string) {
	RetrievalVariantFailures.WithLabelValues(stage).Inc()
}

// RecordFlow records an orchestrator flow.
func RecordFlow(flow, status string, seconds float64) {
	FlowDuration.WithLabelValues(flow, status).Observe(seconds)
}
