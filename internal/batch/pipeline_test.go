package batch

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/execution-bridge/internal/domain"
	"github.com/vitaliisemenov/execution-bridge/internal/publish"
	"github.com/vitaliisemenov/execution-bridge/internal/store"
)

type pipelineFakeStore struct {
	*fakeStore
	bulkUpdateCalls int
	bulkUpdateErr   error
	shortCount      bool
}

func (f *pipelineFakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.TxHandle) error) error {
	return fn(ctx, &fakeTxHandle{parent: f})
}

type fakeTxHandle struct {
	parent *pipelineFakeStore
}

func (h *fakeTxHandle) BulkUpdateSentTimestamp(_ context.Context, ids []int64, _ time.Time) (int, error) {
	h.parent.bulkUpdateCalls++
	if h.parent.bulkUpdateErr != nil {
		return 0, h.parent.bulkUpdateErr
	}
	if h.parent.shortCount {
		return len(ids) - 1, nil
	}
	return len(ids), nil
}

type fakePublisher struct {
	calls int
}

func (f *fakePublisher) Submit(_ context.Context, _ string, executionID int64, _ []byte) <-chan publish.PublishResult {
	f.calls++
	ch := make(chan publish.PublishResult, 1)
	ch <- publish.PublishResult{ExecutionID: executionID, Success: true, AttemptCount: 1}
	close(ch)
	return ch
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, securityID string) domain.Security {
	return domain.Security{SecurityID: securityID, Ticker: "TCK"}
}

type fakeOptimizer struct {
	calls       int
	lastSize    int
	lastSuccess bool
	lastUtil    float64
}

func (f *fakeOptimizer) RecordBatch(size int, _ time.Duration, success bool, poolUtilization float64) {
	f.calls++
	f.lastSize = size
	f.lastSuccess = success
	f.lastUtil = poolUtilization
}

type fakePoolStats struct {
	utilization float64
}

func (f *fakePoolStats) Utilization() float64 { return f.utilization }

func newPipeline(st *pipelineFakeStore, pub *fakePublisher) *Pipeline {
	cfg := Config{Topic: "executions.fills", EnableAsyncKafka: true}
	return New(st, pub, fakeResolver{}, nil, nil, cfg, slog.Default())
}

func TestPipelineProcessAllSucceed(t *testing.T) {
	st := &pipelineFakeStore{fakeStore: &fakeStore{}}
	pub := &fakePublisher{}
	p := newPipeline(st, pub)

	reqs := []*domain.ExecutionRequest{validRequest(), validRequest()}
	result := p.Process(context.Background(), reqs, 10)

	assert.Equal(t, http.StatusCreated, result.StatusCode)
	require.Len(t, result.Results, 2)
	for _, r := range result.Results {
		assert.True(t, r.Success)
	}
	assert.Equal(t, 1, st.bulkUpdateCalls)
	assert.Equal(t, 2, pub.calls)
}

func TestPipelineProcessMixedValidationFailure(t *testing.T) {
	st := &pipelineFakeStore{fakeStore: &fakeStore{}}
	pub := &fakePublisher{}
	p := newPipeline(st, pub)

	bad := validRequest()
	bad.Quantity = decPtr(decimal.Zero)
	reqs := []*domain.ExecutionRequest{validRequest(), bad}

	result := p.Process(context.Background(), reqs, 10)

	assert.Equal(t, http.StatusMultiStatus, result.StatusCode)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	require.NotNil(t, result.Results[1].Validation)
}

func TestPipelineProcessAllInvalid(t *testing.T) {
	st := &pipelineFakeStore{fakeStore: &fakeStore{}}
	pub := &fakePublisher{}
	p := newPipeline(st, pub)

	bad := validRequest()
	bad.Quantity = nil
	result := p.Process(context.Background(), []*domain.ExecutionRequest{bad}, 10)

	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, 0, pub.calls)
}

func TestPipelineProcessAsyncKafkaDisabledSkipsPublish(t *testing.T) {
	st := &pipelineFakeStore{fakeStore: &fakeStore{}}
	pub := &fakePublisher{}
	cfg := Config{Topic: "executions.fills", EnableAsyncKafka: false}
	p := New(st, pub, fakeResolver{}, nil, nil, cfg, slog.Default())

	result := p.Process(context.Background(), []*domain.ExecutionRequest{validRequest()}, 10)

	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, 0, pub.calls)
}

func TestPipelineProcessRecordsBatchOutcomeWithPoolUtilization(t *testing.T) {
	st := &pipelineFakeStore{fakeStore: &fakeStore{}}
	pub := &fakePublisher{}
	opt := &fakeOptimizer{}
	pool := &fakePoolStats{utilization: 0.42}
	cfg := Config{Topic: "executions.fills", EnableAsyncKafka: true}
	p := New(st, pub, fakeResolver{}, opt, pool, cfg, slog.Default())

	reqs := []*domain.ExecutionRequest{validRequest(), validRequest()}
	p.Process(context.Background(), reqs, 10)

	assert.Equal(t, 1, opt.calls)
	assert.Equal(t, 2, opt.lastSize)
	assert.True(t, opt.lastSuccess)
	assert.Equal(t, 0.42, opt.lastUtil)
}

func TestPipelineProcessTimestampCountMismatchFailsRows(t *testing.T) {
	st := &pipelineFakeStore{fakeStore: &fakeStore{}, shortCount: true}
	pub := &fakePublisher{}
	p := newPipeline(st, pub)

	result := p.Process(context.Background(), []*domain.ExecutionRequest{validRequest()}, 10)

	require.Len(t, result.Results, 1)
	assert.False(t, result.Results[0].Success)
	assert.Error(t, result.Results[0].DBError)
	assert.Equal(t, 0, pub.calls)
}
