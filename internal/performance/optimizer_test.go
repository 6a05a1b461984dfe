package performance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptimizerSeedsAtInitialSize(t *testing.T) {
	o := New(Config{InitialBatchSize: 50})
	assert.Equal(t, 50, o.CurrentBatchSize())
}

func TestOptimizerGrowsOnClearSailing(t *testing.T) {
	o := New(Config{InitialBatchSize: 100, AdjustEvery: -1})
	o.RecordBatch(100, 10*time.Millisecond, true, 0.2)
	assert.Greater(t, o.CurrentBatchSize(), 100)
}

func TestOptimizerShrinksOnHighFailureRate(t *testing.T) {
	o := New(Config{InitialBatchSize: 100, AdjustEvery: -1})
	for i := 0; i < 5; i++ {
		o.RecordBatch(100, 10*time.Millisecond, false, 0.2)
	}
	assert.Less(t, o.CurrentBatchSize(), 100)
}

func TestOptimizerShrinksOnHighPoolUtilization(t *testing.T) {
	o := New(Config{InitialBatchSize: 100, AdjustEvery: -1})
	o.RecordBatch(100, 10*time.Millisecond, true, 0.95)
	assert.Less(t, o.CurrentBatchSize(), 100)
}

func TestOptimizerClampsToBounds(t *testing.T) {
	o := New(Config{InitialBatchSize: 10, MinBatchSize: 10, MaxBatchSize: 20, AdjustEvery: -1})
	for i := 0; i < 10; i++ {
		o.RecordBatch(10, time.Millisecond, true, 0.1)
	}
	assert.LessOrEqual(t, o.CurrentBatchSize(), 20)
}

func TestOptimizerDoesNotAdjustBeforeInterval(t *testing.T) {
	o := New(Config{InitialBatchSize: 100, AdjustEvery: time.Hour})
	o.RecordBatch(100, 10*time.Millisecond, false, 0.99)
	assert.Equal(t, 100, o.CurrentBatchSize())
}
