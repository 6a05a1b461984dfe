package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/core/resilience"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// executionStore is the subset of *store.Store the recovery path needs,
// kept narrow so this package does not import pgx types.
type executionStore interface {
	Insert(ctx context.Context, e *domain.Execution) (*domain.Execution, error)
	BulkInsert(ctx context.Context, rows []*domain.Execution) ([]*domain.Execution, error)
}

// RowResult is the per-row outcome of a persistence attempt.
type RowResult struct {
	Execution *domain.Execution
	Err       error
}

// BulkInsertWithFallback tries a single multi-row insert first. If that
// fails for a reason classified as transient, it retries the whole bulk
// statement with backoff. If the bulk statement fails for a non-transient
// reason, or retries are exhausted, it falls back to inserting each row
// individually so a single bad row cannot fail its siblings.
func BulkInsertWithFallback(ctx context.Context, store executionStore, rows []*domain.Execution, m *metrics.BatchMetrics, logger *slog.Logger) []RowResult {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	m.DatabaseOperationsTotal.WithLabelValues("bulk_insert").Inc()

	policy := &resilience.RetryPolicy{
		MaxRetries:    2,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		ErrorChecker:  transientChecker{},
		Logger:        logger,
		OperationName: "bulk_insert",
	}

	err := resilience.WithRetry(ctx, policy, func() error {
		_, insertErr := store.BulkInsert(ctx, rows)
		return insertErr
	})
	m.BulkInsertDurationSeconds.Observe(time.Since(start).Seconds())

	if err == nil {
		results := make([]RowResult, len(rows))
		for i, e := range rows {
			results[i] = RowResult{Execution: e}
		}
		return results
	}

	m.DatabaseOperationsError.WithLabelValues("bulk_insert", errorKind(err)).Inc()
	logger.Warn("batch: bulk insert failed, falling back to per-row insert", "rows", len(rows), "error", err)

	return insertRowByRow(ctx, store, rows, m, logger)
}

func insertRowByRow(ctx context.Context, store executionStore, rows []*domain.Execution, m *metrics.BatchMetrics, logger *slog.Logger) []RowResult {
	results := make([]RowResult, len(rows))
	for i, e := range rows {
		policy := &resilience.RetryPolicy{
			MaxRetries:   2,
			BaseDelay:    50 * time.Millisecond,
			MaxDelay:     1 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
			ErrorChecker: transientChecker{},
			Logger:       logger,
		}

		insertErr := resilience.WithRetry(ctx, policy, func() error {
			_, err := store.Insert(ctx, e)
			return err
		})

		m.DatabaseOperationsTotal.WithLabelValues("insert").Inc()
		if insertErr != nil {
			m.DatabaseOperationsError.WithLabelValues("insert", errorKind(insertErr)).Inc()
			logger.Error("batch: row insert failed after retries", "index", i, "error", insertErr)
		}
		results[i] = RowResult{Execution: e, Err: insertErr}
	}
	return results
}

type transientChecker struct{}

func (transientChecker) IsRetryable(err error) bool { return apperrors.IsTransient(err) }

func errorKind(err error) string {
	if apperrors.IsTransient(err) {
		return "transient"
	}
	return "non_transient"
}

// KafkaRecoveryFunc attempts to (re)publish one previously-unsent execution.
type KafkaRecoveryFunc func(ctx context.Context, e *domain.Execution) error

// RecoverKafkaFailures is a best-effort background sweep: it re-attempts
// publish for every execution in unsent (it does not itself check
// sentTimestamp), logging but never
// propagating individual failures. It is meant to be invoked periodically
// by a caller-owned ticker, not inline with the request path.
func RecoverKafkaFailures(ctx context.Context, unsent []*domain.Execution, publish KafkaRecoveryFunc, logger *slog.Logger) {
	for _, e := range unsent {
		if err := publish(ctx, e); err != nil {
			logger.Warn("batch: kafka recovery attempt failed, will retry next sweep", "execution_id", e.ID, "error", err)
		}
	}
}
