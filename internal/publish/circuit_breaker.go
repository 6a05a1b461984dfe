package publish

import (
	"sync"
	"time"

	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// CircuitBreakerState is one of Closed, Open, HalfOpen.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes trip/recovery thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// CircuitBreaker is a per-topic Closed/Open/HalfOpen state machine guarding
// the async publisher from hammering a topic that is failing.
type CircuitBreaker struct {
	config  CircuitBreakerConfig
	topic   string
	metrics *metrics.PublishMetrics

	mu              sync.RWMutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker builds a breaker for topic, reporting state transitions
// to m.
func NewCircuitBreaker(config CircuitBreakerConfig, topic string, m *metrics.PublishMetrics) *CircuitBreaker {
	cb := &CircuitBreaker{
		config:  config.withDefaults(),
		topic:   topic,
		metrics: m,
		state:   StateClosed,
	}
	cb.reportState()
	return cb
}

// CanAttempt reports whether a publish attempt may proceed. In Open state,
// once config.Timeout has elapsed since the last failure, it moves to
// HalfOpen and returns true. HalfOpen does not limit the number of attempts:
// every call returns true until a failure re-opens the breaker or
// SuccessThreshold successes close it.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.Timeout {
			cb.state = StateHalfOpen
			cb.successCount = 0
			cb.reportStateLocked()
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess registers a successful publish attempt.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.reportStateLocked()
		}
	}
}

// RecordFailure registers a failed publish attempt, tripping the breaker
// when the failure threshold is crossed, or immediately re-opening from
// HalfOpen on any failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			if cb.metrics != nil {
				cb.metrics.CircuitBreakerTripsTotal.WithLabelValues(cb.topic).Inc()
			}
			cb.reportStateLocked()
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.successCount = 0
		if cb.metrics != nil {
			cb.metrics.CircuitBreakerTripsTotal.WithLabelValues(cb.topic).Inc()
		}
		cb.reportStateLocked()
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the breaker back to Closed, clearing counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.reportStateLocked()
}

func (cb *CircuitBreaker) reportState() {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	cb.reportStateLocked()
}

func (cb *CircuitBreaker) reportStateLocked() {
	if cb.metrics == nil {
		return
	}
	value := 0.0
	if cb.state == StateOpen {
		value = 1
		cb.metrics.CircuitBreakerOpenTotal.WithLabelValues(cb.topic).Inc()
	} else if cb.state == StateHalfOpen {
		value = 2
	}
	cb.metrics.CircuitBreakerState.WithLabelValues(cb.topic).Set(value)
	cb.metrics.CircuitBreakerFailures.WithLabelValues(cb.topic).Set(float64(cb.failureCount))
}
