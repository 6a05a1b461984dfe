package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BatchMetrics contains the batch-pipeline metrics: request/execution
// counters, processing durations, and the batch-size optimizer's current
// target.
//
// All metrics follow the taxonomy:
// execution_bridge_<subsystem>_<metric_name>_<unit>
type BatchMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestsSuccess *prometheus.CounterVec

	ExecutionsProcessed *prometheus.CounterVec
	ExecutionsSuccess   *prometheus.CounterVec

	DatabaseOperationsTotal *prometheus.CounterVec
	DatabaseOperationsError *prometheus.CounterVec

	ProcessingDurationSeconds    prometheus.Histogram
	BulkInsertDurationSeconds    prometheus.Histogram
	BulkUpdateDurationSeconds    prometheus.Histogram

	Throughput       prometheus.Gauge
	AverageDuration  prometheus.Gauge
	SuccessRate      prometheus.Gauge
	OptimalBatchSize prometheus.Gauge
}

// NewBatchMetrics creates and registers the batch pipeline metrics.
func NewBatchMetrics(namespace string) *BatchMetrics {
	return &BatchMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "requests_total",
			Help:      "Total number of batch submit requests received",
		}, []string{"status"}),

		RequestsSuccess: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "requests_success_total",
			Help:      "Total number of batch submit requests that fully succeeded",
		}, []string{"status"}),

		ExecutionsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "executions_processed_total",
			Help:      "Total number of execution rows processed across all batches",
		}, []string{"outcome"}),

		ExecutionsSuccess: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "executions_success_total",
			Help:      "Total number of execution rows persisted successfully",
		}, []string{"outcome"}),

		DatabaseOperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operations_total",
			Help:      "Total number of database operations attempted by the batch pipeline",
		}, []string{"operation"}),

		DatabaseOperationsError: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operations_error_total",
			Help:      "Total number of database operations that failed",
		}, []string{"operation", "kind"}),

		ProcessingDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "processing_duration_seconds",
			Help:      "Wall-clock duration of one batch-submit request",
			Buckets:   prometheus.DefBuckets,
		}),

		BulkInsertDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "bulk_insert_duration_seconds",
			Help:      "Duration of bulkInsert calls",
			Buckets:   prometheus.DefBuckets,
		}),

		BulkUpdateDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "bulk_update_duration_seconds",
			Help:      "Duration of bulkUpdateSentTimestamp calls",
			Buckets:   prometheus.DefBuckets,
		}),

		Throughput: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "throughput_executions_per_second",
			Help:      "Recent observed executions-per-second throughput",
		}),

		AverageDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "average_duration_seconds",
			Help:      "Recent observed average batch processing duration",
		}),

		SuccessRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "success_rate",
			Help:      "Recent observed fraction of batches that fully succeeded",
		}),

		OptimalBatchSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "size_optimal_current",
			Help:      "Current batch size advised by the batch-size optimizer",
		}),
	}
}
