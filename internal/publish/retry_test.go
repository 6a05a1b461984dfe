package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoffGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Multiplier: 2, Jitter: 0}

	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, CalculateBackoff(cfg, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(cfg, 3))
	assert.Equal(t, 500*time.Millisecond, CalculateBackoff(cfg, 4))
}

func TestShouldRetryRespectsMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3}
	assert.True(t, ShouldRetry(cfg, 1))
	assert.True(t, ShouldRetry(cfg, 2))
	assert.False(t, ShouldRetry(cfg, 3))
}
