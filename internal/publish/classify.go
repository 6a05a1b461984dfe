package publish

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/IBM/sarama"
)

// classifyError reports whether err represents a transient broker/transport
// condition worth retrying, as opposed to a permanent rejection (oversized
// message, unknown topic with auto-create disabled, serialization error).
func classifyError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var kErr sarama.KError
	if errors.As(err, &kErr) {
		return classifyKafkaError(kErr)
	}

	return classifyErrorString(err.Error())
}

func classifyKafkaError(k sarama.KError) bool {
	switch k {
	case sarama.ErrRequestTimedOut,
		sarama.ErrBrokerNotAvailable,
		sarama.ErrReplicaNotAvailable,
		sarama.ErrLeaderNotAvailable,
		sarama.ErrNotLeaderForPartition,
		sarama.ErrNetworkException,
		sarama.ErrNotEnoughReplicas,
		sarama.ErrNotEnoughReplicasAfterAppend,
		sarama.ErrOutOfBrokers,
		sarama.ErrControllerNotAvailable:
		return true
	default:
		return false
	}
}

func classifyErrorString(msg string) bool {
	msg = strings.ToLower(msg)
	for _, needle := range []string{"timeout", "connection refused", "connection reset", "broken pipe", "no route to host", "i/o timeout", "eof"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
