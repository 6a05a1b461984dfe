package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// dlqEnvelope wraps the original payload with the reason publishing gave up,
// so a human or a replay tool can inspect why a message landed here.
type dlqEnvelope struct {
	OriginalTopic string          `json:"originalTopic"`
	ExecutionID   int64           `json:"executionId"`
	Reason        string          `json:"reason"`
	FailedAt      time.Time       `json:"failedAt"`
	Payload       json.RawMessage `json:"payload"`
}

// DLQSender makes a single best-effort publish attempt to <topic><suffix>.
// It does not persist, replay, or retry. A message that cannot be handed to
// the producer because its input is full is logged and dropped; an error the
// broker reports for a dead-letter message is not logged.
type DLQSender struct {
	producer sarama.AsyncProducer
	suffix   string
	metrics  *metrics.PublishMetrics
	logger   *slog.Logger
}

// NewDLQSender builds a sender sharing the publisher's underlying producer.
func NewDLQSender(producer sarama.AsyncProducer, suffix string, m *metrics.PublishMetrics, logger *slog.Logger) *DLQSender {
	return &DLQSender{producer: producer, suffix: suffix, metrics: m, logger: logger}
}

// Send fires a single async publish to the dead-letter topic. It never
// blocks on the result and never returns an error: the caller's own publish
// attempt has already failed, and the DLQ path exists to preserve the event,
// not to be retried itself.
func (d *DLQSender) Send(_ context.Context, originalTopic string, executionID int64, payload []byte, reason string) {
	envelope := dlqEnvelope{
		OriginalTopic: originalTopic,
		ExecutionID:   executionID,
		Reason:        reason,
		FailedAt:      time.Now(),
		Payload:       json.RawMessage(payload),
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Error("publish: dlq envelope marshal failed", "execution_id", executionID, "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: originalTopic + d.suffix,
		Value: sarama.ByteEncoder(body),
	}

	select {
	case d.producer.Input() <- msg:
		d.metrics.DeadLetterTotal.WithLabelValues(originalTopic).Inc()
	default:
		d.logger.Error("publish: dlq send dropped, producer input full", "execution_id", executionID, "topic", msg.Topic)
	}
}
