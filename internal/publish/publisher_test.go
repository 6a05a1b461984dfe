package publish

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Retry:   RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, Jitter: 0},
		Breaker: CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Second},
	}
}

func TestPublisher_Submit_Success(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputAndSucceed()

	p := newWithProducer(testConfig(), producer, nil)
	t.Cleanup(func() { _ = p.Close() })

	resultCh := p.Submit(context.Background(), "executions", 1, []byte(`{}`))
	result := <-resultCh
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), result.ExecutionID)
}

func TestPublisher_Submit_RetriesOnTransientFailureThenSucceeds(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputAndFail(errTransient{})
	producer.ExpectInputAndSucceed()

	p := newWithProducer(testConfig(), producer, nil)
	t.Cleanup(func() { _ = p.Close() })

	resultCh := p.Submit(context.Background(), "executions", 1, []byte(`{}`))
	result := <-resultCh
	require.True(t, result.Success)
	assert.Equal(t, 2, result.AttemptCount)
}

type errTransient struct{}

func (errTransient) Error() string { return "connection refused" }

type errNonTransient struct{}

func (errNonTransient) Error() string { return "invalid message" }

func TestPublisher_Submit_OpenBreakerFailsWithoutDLQSend(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)

	p := newWithProducer(testConfig(), producer, nil)
	t.Cleanup(func() { _ = p.Close() })

	cb := p.breakerFor("executions")
	for i := 0; i < testConfig().Breaker.FailureThreshold; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())

	resultCh := p.Submit(context.Background(), "executions", 1, []byte(`{}`))
	result := <-resultCh
	assert.False(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Equal(t, "Circuit breaker is open", result.ErrorMessage)
}

func TestPublisher_Submit_ExhaustedRetriesRoutesToDLQWhenEnabled(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputAndFail(errNonTransient{})
	producer.ExpectInputAndSucceed()

	cfg := testConfig()
	cfg.EnableDeadLetterQueue = true
	p := newWithProducer(cfg, producer, nil)
	t.Cleanup(func() { _ = p.Close() })

	resultCh := p.Submit(context.Background(), "executions", 1, []byte(`{}`))
	result := <-resultCh
	assert.False(t, result.Success)
	assert.Equal(t, "invalid message", result.ErrorMessage)
}

func TestPublisher_Submit_ExhaustedRetriesSkipsDLQWhenDisabled(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputAndFail(errNonTransient{})

	cfg := testConfig()
	cfg.EnableDeadLetterQueue = false
	p := newWithProducer(cfg, producer, nil)
	t.Cleanup(func() { _ = p.Close() })

	resultCh := p.Submit(context.Background(), "executions", 1, []byte(`{}`))
	result := <-resultCh
	assert.False(t, result.Success)
	assert.Equal(t, "invalid message", result.ErrorMessage)
}
