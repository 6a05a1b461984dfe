// Package publish implements the Async Publisher (C6): a Kafka-backed,
// per-topic circuit-breaking publish path with exponential backoff retry and
// a dead-letter fallback for execution events that never succeed.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// PublishResult is delivered on the channel returned by Submit once the
// attempt sequence for one message concludes, however it concludes.
type PublishResult struct {
	ExecutionID  int64
	Success      bool
	Skipped      bool
	AttemptCount int
	ErrorMessage string
}

// Config wires the underlying Kafka client and retry/breaker tuning.
type Config struct {
	Brokers               []string
	Retry                 RetryConfig
	Breaker               CircuitBreakerConfig
	DLQSuffix             string
	EnableDeadLetterQueue bool
}

func (c Config) dlqSuffix() string {
	if c.DLQSuffix == "" {
		return ".dlq"
	}
	return c.DLQSuffix
}

type pendingEntry struct {
	topic       string
	executionID int64
	payload     []byte
	attempt     int
	resultCh    chan PublishResult
}

// Publisher submits execution events to Kafka, retrying transient failures
// with exponential backoff and routing exhausted messages to a per-topic DLQ.
type Publisher struct {
	cfg      Config
	producer sarama.AsyncProducer
	dlq      *DLQSender
	metrics  *metrics.PublishMetrics
	logger   *slog.Logger

	breakersMu sync.Mutex
	breakers   map[string]*CircuitBreaker

	pending sync.Map // string -> *pendingEntry

	closeOnce sync.Once
	done      chan struct{}
}

// New dials the Kafka cluster and starts the background success/error
// consumers. Callers must call Close to release the underlying producer.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Idempotent = true
	saramaCfg.Net.MaxOpenRequests = 1
	saramaCfg.Producer.Retry.Max = 0 // retry orchestration lives in this package, not sarama's internal retry

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("publish: create async producer: %w", err)
	}

	return newWithProducer(cfg, producer, logger), nil
}

// newWithProducer builds a Publisher around an already-constructed producer,
// letting tests substitute sarama/mocks.AsyncProducer for a real broker dial.
func newWithProducer(cfg Config, producer sarama.AsyncProducer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		cfg:      cfg,
		producer: producer,
		dlq:      NewDLQSender(producer, cfg.dlqSuffix(), metrics.DefaultRegistry().Publish(), logger),
		metrics:  metrics.DefaultRegistry().Publish(),
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
		done:     make(chan struct{}),
	}

	go p.consumeSuccesses()
	go p.consumeErrors()

	return p
}

func (p *Publisher) breakerFor(topic string) *CircuitBreaker {
	p.breakersMu.Lock()
	defer p.breakersMu.Unlock()
	cb, ok := p.breakers[topic]
	if !ok {
		cb = NewCircuitBreaker(p.cfg.Breaker, topic, p.metrics)
		p.breakers[topic] = cb
	}
	return cb
}

// Submit publishes payload to topic under the given executionID, returning a
// buffered channel that receives exactly one PublishResult once the attempt
// sequence concludes (success, DLQ fallback, or a failure because the
// circuit breaker is open). Skipped is reserved for a globally-disabled
// publisher; an open breaker is a failure, not a skip.
func (p *Publisher) Submit(ctx context.Context, topic string, executionID int64, payload []byte) <-chan PublishResult {
	resultCh := make(chan PublishResult, 1)
	p.attempt(ctx, topic, executionID, payload, 1, resultCh)
	return resultCh
}

func (p *Publisher) attempt(ctx context.Context, topic string, executionID int64, payload []byte, attemptNum int, resultCh chan PublishResult) {
	cb := p.breakerFor(topic)
	if !cb.CanAttempt() {
		p.logger.Warn("publish: circuit breaker open, skipping attempt", "topic", topic, "execution_id", executionID)
		resultCh <- PublishResult{ExecutionID: executionID, Success: false, AttemptCount: attemptNum - 1, ErrorMessage: "Circuit breaker is open"}
		close(resultCh)
		return
	}

	corrID := uuid.NewString()
	p.pending.Store(corrID, &pendingEntry{
		topic:       topic,
		executionID: executionID,
		payload:     payload,
		attempt:     attemptNum,
		resultCh:    resultCh,
	})

	msg := &sarama.ProducerMessage{
		Topic:    topic,
		Key:      sarama.StringEncoder(strconv.FormatInt(executionID, 10)),
		Value:    sarama.ByteEncoder(payload),
		Metadata: corrID,
	}

	start := time.Now()
	select {
	case p.producer.Input() <- msg:
	case <-ctx.Done():
		p.pending.Delete(corrID)
		resultCh <- PublishResult{ExecutionID: executionID, AttemptCount: attemptNum, ErrorMessage: ctx.Err().Error()}
		close(resultCh)
	case <-p.done:
		p.pending.Delete(corrID)
		resultCh <- PublishResult{ExecutionID: executionID, AttemptCount: attemptNum, ErrorMessage: "publisher closed"}
		close(resultCh)
	}
	_ = start
}

func (p *Publisher) consumeSuccesses() {
	for msg := range p.producer.Successes() {
		corrID, _ := msg.Metadata.(string)
		v, ok := p.pending.LoadAndDelete(corrID)
		if !ok {
			continue
		}
		entry := v.(*pendingEntry)
		p.breakerFor(entry.topic).RecordSuccess()
		p.metrics.PublishSuccessTotal.WithLabelValues(entry.topic).Inc()
		entry.resultCh <- PublishResult{ExecutionID: entry.executionID, Success: true, AttemptCount: entry.attempt}
		close(entry.resultCh)
	}
}

func (p *Publisher) consumeErrors() {
	for pErr := range p.producer.Errors() {
		corrID, _ := pErr.Msg.Metadata.(string)
		v, ok := p.pending.LoadAndDelete(corrID)
		if !ok {
			continue
		}
		entry := v.(*pendingEntry)

		cb := p.breakerFor(entry.topic)
		cb.RecordFailure()
		p.metrics.PublishFailureTotal.WithLabelValues(entry.topic).Inc()

		if classifyError(pErr.Err) && ShouldRetry(p.cfg.Retry, entry.attempt) {
			p.metrics.PublishRetryTotal.WithLabelValues(entry.topic).Inc()
			delay := CalculateBackoff(p.cfg.Retry, entry.attempt)
			p.logger.Warn("publish: retrying after transient failure",
				"topic", entry.topic, "execution_id", entry.executionID, "attempt", entry.attempt, "delay", delay, "error", pErr.Err)
			time.AfterFunc(delay, func() {
				p.attempt(context.Background(), entry.topic, entry.executionID, entry.payload, entry.attempt+1, entry.resultCh)
			})
			continue
		}

		p.metrics.PublishFailureTotal.WithLabelValues(entry.topic).Inc()
		entry.resultCh <- PublishResult{ExecutionID: entry.executionID, AttemptCount: entry.attempt, ErrorMessage: pErr.Err.Error()}
		close(entry.resultCh)

		if !p.cfg.EnableDeadLetterQueue {
			p.logger.Error("publish: exhausted retries, dead-letter queue disabled",
				"topic", entry.topic, "execution_id", entry.executionID, "attempt", entry.attempt, "error", pErr.Err)
			continue
		}
		p.logger.Error("publish: exhausted retries, routing to dead-letter",
			"topic", entry.topic, "execution_id", entry.executionID, "attempt", entry.attempt, "error", pErr.Err)
		p.dlq.Send(context.Background(), entry.topic, entry.executionID, entry.payload, pErr.Err.Error())
	}
}

// Close shuts down the underlying producer, waiting for in-flight messages
// to drain.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.producer.Close()
	})
	return err
}
