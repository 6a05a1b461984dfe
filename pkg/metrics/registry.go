// Package metrics provides centralized metrics management for the
// execution bridge service.
//
// This package implements a unified taxonomy for Prometheus metrics:
//   - Business metrics: batch pipeline throughput, publish outcomes
//   - Infrastructure metrics: database, cache, repositories
//
// Metric names follow execution_bridge_<subsystem>_<metric_name>_<unit>;
// infrastructure subsystems carry an infra_ prefix (infra_db) and publisher
// subsystems a technical_ prefix (technical_publish).
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Batch().RequestsTotal.WithLabelValues("success").Inc()
//	registry.Infra().DB.ConnectionsActive.Set(42)
package metrics

import (
	"sync"
)

// MetricCategory represents the category of a metric.
type MetricCategory string

const (
	// CategoryBatch represents batch pipeline metrics (requests, executions, durations)
	CategoryBatch MetricCategory = "batch"

	// CategoryPublish represents async publisher metrics (publish outcomes, circuit breaker)
	CategoryPublish MetricCategory = "publish"

	// CategoryInfra represents infrastructure metrics (database, cache, repositories)
	CategoryInfra MetricCategory = "infra"
)

// MetricsRegistry is the central registry for all Prometheus metrics.
// Provides organized access to metrics by category (Batch, Publish, Infra).
//
// This is a simplified registry design (vs. full validation/map approach)
// for better maintainability and performance.
//
// Thread-safe: All Prometheus metrics are thread-safe by design.
// Singleton: Use DefaultRegistry() to get the global instance.
type MetricsRegistry struct {
	namespace string

	// Category managers (lazy-initialized)
	batch   *BatchMetrics
	publish *PublishMetrics
	infra   *InfraMetrics

	// Separate sync.Once for each category for true lazy initialization
	batchOnce   sync.Once
	publishOnce sync.Once
	infraOnce   sync.Once
}

var (
	// Global singleton registry instance
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry.
// Safe for concurrent use. Initialized once on first call.
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("execution_bridge")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a new MetricsRegistry with the specified namespace.
// For most use cases, use DefaultRegistry() instead of calling this directly.
//
// Parameters:
//   - namespace: The Prometheus namespace for all metrics (typically "execution_bridge")
//
// Returns:
//   - *MetricsRegistry: A new registry instance
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "execution_bridge"
	}

	return &MetricsRegistry{
		namespace: namespace,
	}
}

// Batch returns the batch-pipeline metrics manager. Lazy-initialized on
// first access.
func (r *MetricsRegistry) Batch() *BatchMetrics {
	r.batchOnce.Do(func() {
		r.batch = NewBatchMetrics(r.namespace)
	})
	return r.batch
}

// Publish returns the async-publisher metrics manager. Lazy-initialized on
// first access.
func (r *MetricsRegistry) Publish() *PublishMetrics {
	r.publishOnce.Do(func() {
		r.publish = NewPublishMetrics(r.namespace)
	})
	return r.publish
}

// Infra returns the Infrastructure metrics manager.
// Lazy-initialized on first access.
//
// Infrastructure metrics include:
//   - Database (connections, queries, errors)
//   - Cache (hits, misses, evictions)
//   - Repository (query duration, errors, results)
//
// Example:
//
//	registry.Infra().DB.ConnectionsActive.Set(42)
//	registry.Infra().Repository.QueryDurationSeconds.WithLabelValues("find_paged", "success").Observe(0.05)
func (r *MetricsRegistry) Infra() *InfraMetrics {
	r.infraOnce.Do(func() {
		r.infra = NewInfraMetrics(r.namespace)
	})
	return r.infra
}

// Namespace returns the configured namespace for this registry.
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}
