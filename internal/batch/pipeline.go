package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
	"github.com/vitaliisemenov/execution-bridge/internal/publish"
	"github.com/vitaliisemenov/execution-bridge/internal/store"
	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// txStore is the subset of *store.Store the pipeline needs beyond
// executionStore, isolated for testability.
type txStore interface {
	executionStore
	WithTx(ctx context.Context, fn func(ctx context.Context, tx store.TxHandle) error) error
}

// eventPublisher is the subset of *publish.Publisher the pipeline needs,
// isolated so tests can stub out the Kafka round-trip.
type eventPublisher interface {
	Submit(ctx context.Context, topic string, executionID int64, payload []byte) <-chan publish.PublishResult
}

// securityResolver is the subset of *security.Enricher the pipeline needs.
type securityResolver interface {
	Resolve(ctx context.Context, securityID string) domain.Security
}

// batchOptimizer is the subset of *performance.Optimizer the pipeline feeds
// after each bulk-insert chunk.
type batchOptimizer interface {
	RecordBatch(size int, duration time.Duration, success bool, poolUtilization float64)
}

// poolStatsProvider is the subset of *poolmonitor.Monitor the pipeline reads
// to tell the optimizer how saturated the connection pool currently is.
type poolStatsProvider interface {
	Utilization() float64
}

// ItemResult is the per-index outcome of one batch submission.
type ItemResult struct {
	Index      int
	Success    bool
	Execution  *domain.Execution
	Validation *apperrors.ValidationError
	DBError    error
}

// BatchResult is the full outcome of Process, ready to be rendered by the
// HTTP handler.
type BatchResult struct {
	Results    []ItemResult
	StatusCode int
}

// Config tunes the pipeline's kill switches independent of its wired
// dependencies.
type Config struct {
	Topic string

	// EnableAsyncKafka gates the post-commit publish. When false, every
	// bulk-inserted row is left unpublished and sentTimestamp commit is the
	// last thing that happens to it on this path.
	EnableAsyncKafka bool
}

// Pipeline is the Batch Pipeline orchestrator (C7): validation, persistence
// with fallback, timestamp commit, and async publish, wired together per
// request.
type Pipeline struct {
	store     txStore
	publisher eventPublisher
	enricher  securityResolver
	optimizer batchOptimizer
	poolStats poolStatsProvider
	cfg       Config
	metrics   *metrics.BatchMetrics
	logger    *slog.Logger
}

// New builds a Pipeline. optimizer and poolStats may be nil, in which case
// the batch-size feedback loop is simply not fed.
func New(st txStore, publisher eventPublisher, enricher securityResolver, optimizer batchOptimizer, poolStats poolStatsProvider, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     st,
		publisher: publisher,
		enricher:  enricher,
		optimizer: optimizer,
		poolStats: poolStats,
		cfg:       cfg,
		metrics:   metrics.DefaultRegistry().Batch(),
		logger:    logger,
	}
}

// Process validates, persists, and publishes a batch of requests, assigning
// each input index an ItemResult. batchSize bounds how many valid rows are
// sent in a single bulk-insert statement.
func (p *Pipeline) Process(ctx context.Context, reqs []*domain.ExecutionRequest, batchSize int) BatchResult {
	start := time.Now()
	p.metrics.RequestsTotal.WithLabelValues("received").Inc()
	receivedAt := time.Now().UTC()

	results := make([]ItemResult, len(reqs))
	var validIdx []int
	var validRows []*domain.Execution

	for i, req := range reqs {
		if ve := ValidateRequest(req); ve != nil {
			results[i] = ItemResult{Index: i, Validation: ve}
			p.metrics.ExecutionsProcessed.WithLabelValues("validation_failed").Inc()
			continue
		}
		e := ToExecution(req, receivedAt)
		validIdx = append(validIdx, i)
		validRows = append(validRows, e)
	}

	for _, chunk := range SplitBatch(len(validRows), batchSize) {
		rows := validRows[chunk[0]:chunk[1]]
		idxs := validIdx[chunk[0]:chunk[1]]

		chunkStart := time.Now()
		rowResults := BulkInsertWithFallback(ctx, p.store, rows, p.metrics, p.logger)
		p.recordBatchOutcome(len(rows), time.Since(chunkStart), rowResults)
		p.commitAndPublish(ctx, rowResults)

		for j, rr := range rowResults {
			i := idxs[j]
			if rr.Err != nil {
				results[i] = ItemResult{Index: i, Execution: rr.Execution, DBError: rr.Err}
				p.metrics.ExecutionsProcessed.WithLabelValues("persist_failed").Inc()
				continue
			}
			results[i] = ItemResult{Index: i, Success: true, Execution: rr.Execution}
			p.metrics.ExecutionsProcessed.WithLabelValues("success").Inc()
			p.metrics.ExecutionsSuccess.WithLabelValues("success").Inc()
		}
	}

	p.metrics.ProcessingDurationSeconds.Observe(time.Since(start).Seconds())
	statusCode := determineStatusCode(results)
	if statusCode < http.StatusBadRequest {
		p.metrics.RequestsSuccess.WithLabelValues("success").Inc()
	}

	return BatchResult{Results: results, StatusCode: statusCode}
}

// recordBatchOutcome feeds one bulk-insert chunk's size, duration, and
// success into the batch-size optimizer, along with the connection pool's
// most recently sampled utilization. A chunk counts as successful only if
// every row in it persisted.
func (p *Pipeline) recordBatchOutcome(size int, duration time.Duration, rowResults []RowResult) {
	if p.optimizer == nil {
		return
	}
	success := true
	for i := range rowResults {
		if rowResults[i].Err != nil {
			success = false
			break
		}
	}
	var utilization float64
	if p.poolStats != nil {
		utilization = p.poolStats.Utilization()
	}
	p.optimizer.RecordBatch(size, duration, success, utilization)
}

// commitAndPublish sets sent_timestamp on successfully inserted rows inside
// a single transaction, then fires an async publish for each. A count
// mismatch on the timestamp update marks every row in the batch as failed:
// the data has diverged from what the caller believes was persisted.
func (p *Pipeline) commitAndPublish(ctx context.Context, rowResults []RowResult) {
	var ids []int64
	byID := make(map[int64]*domain.Execution)
	for i := range rowResults {
		if rowResults[i].Err != nil {
			continue
		}
		e := rowResults[i].Execution
		ids = append(ids, e.ID)
		byID[e.ID] = e
	}
	if len(ids) == 0 {
		return
	}

	now := time.Now().UTC()
	err := p.store.WithTx(ctx, func(ctx context.Context, tx store.TxHandle) error {
		affected, txErr := tx.BulkUpdateSentTimestamp(ctx, ids, now)
		if txErr != nil {
			return txErr
		}
		if affected != len(ids) {
			return &apperrors.CriticalBulkFailure{Err: store.ErrBulkUpdateCountMismatch(len(ids), affected)}
		}
		return nil
	})
	if err != nil {
		p.logger.Error("batch: sent_timestamp commit failed", "ids", ids, "error", err)
		for i := range rowResults {
			if rowResults[i].Err == nil {
				rowResults[i].Err = err
			}
		}
		return
	}

	for _, id := range ids {
		byID[id].SentTimestamp = &now
		p.publishAsync(ctx, byID[id])
	}
}

func (p *Pipeline) publishAsync(ctx context.Context, e *domain.Execution) {
	if !p.cfg.EnableAsyncKafka {
		p.metrics.ExecutionsProcessed.WithLabelValues("publish_skipped").Inc()
		p.logger.Debug("batch: async kafka publish disabled, skipping", "execution_id", e.ID)
		return
	}

	sec := p.enricher.Resolve(ctx, e.SecurityID)
	payload, err := json.Marshal(e.ToDTO(sec))
	if err != nil {
		p.logger.Error("batch: marshal publish payload failed", "execution_id", e.ID, "error", err)
		return
	}

	resultCh := p.publisher.Submit(ctx, p.cfg.Topic, e.ID, payload)
	go func() {
		result := <-resultCh
		if !result.Success {
			p.logger.Warn("batch: async publish did not succeed",
				"execution_id", e.ID, "skipped", result.Skipped, "attempts", result.AttemptCount, "error", result.ErrorMessage)
		}
	}()
}

// determineStatusCode picks the batch's overall HTTP status: 201 if every
// row succeeded, 207 if some succeeded and some did not, 400 if none did.
func determineStatusCode(results []ItemResult) int {
	success, failure := 0, 0
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failure++
		}
	}
	switch {
	case failure == 0:
		return http.StatusCreated
	case success == 0:
		return http.StatusBadRequest
	default:
		return http.StatusMultiStatus
	}
}
