package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PublishMetrics contains the technical-level metrics for the async
// publisher: per-topic publish outcomes, retries, dead-letter sends, and
// circuit-breaker state.
type PublishMetrics struct {
	PublishSuccessTotal *prometheus.CounterVec
	PublishFailureTotal *prometheus.CounterVec
	PublishRetryTotal   *prometheus.CounterVec
	PublishDuration     *prometheus.HistogramVec

	DeadLetterTotal *prometheus.CounterVec

	CircuitBreakerOpenTotal  *prometheus.CounterVec
	CircuitBreakerTripsTotal *prometheus.CounterVec
	CircuitBreakerState      *prometheus.GaugeVec
	CircuitBreakerFailures   *prometheus.GaugeVec
}

// NewPublishMetrics creates and registers the async publisher metrics.
func NewPublishMetrics(namespace string) *PublishMetrics {
	return &PublishMetrics{
		PublishSuccessTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "success_total",
			Help:      "Total number of messages published successfully",
		}, []string{"topic"}),

		PublishFailureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "failure_total",
			Help:      "Total number of messages that failed to publish after exhausting retries",
		}, []string{"topic"}),

		PublishRetryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "retry_total",
			Help:      "Total number of publish retry attempts",
		}, []string{"topic"}),

		PublishDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "duration_seconds",
			Help:      "Duration of a single publish attempt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic", "status"}),

		DeadLetterTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "dead_letter_total",
			Help:      "Total number of messages successfully routed to the dead-letter topic",
		}, []string{"topic"}),

		CircuitBreakerOpenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "circuit_breaker_open_total",
			Help:      "Total number of transitions of the circuit breaker into the open state (rejected submissions are not counted)",
		}, []string{"topic"}),

		CircuitBreakerTripsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of times the circuit breaker tripped from closed to open",
		}, []string{"topic"}),

		CircuitBreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"topic"}),

		CircuitBreakerFailures: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "technical_publish",
			Name:      "circuit_breaker_failure_count",
			Help:      "Current consecutive failure count observed by the circuit breaker",
		}, []string{"topic"}),
	}
}
