// Package performance implements the Batch-Size Optimizer (C8): it tracks
// recent batch outcomes and nudges the pipeline's target batch size toward
// whatever the connection pool and downstream components can sustain.
package performance

import (
	"sync"
	"time"

	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// Config bounds the optimizer's search space and adjustment cadence.
type Config struct {
	MinBatchSize     int
	MaxBatchSize     int
	InitialBatchSize int
	WindowSize       int
	AdjustEvery      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = 10
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 500
	}
	if c.InitialBatchSize <= 0 {
		c.InitialBatchSize = 100
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 20
	}
	if c.AdjustEvery == 0 {
		c.AdjustEvery = 5 * time.Second
	}
	return c
}

type observation struct {
	size       int
	durationMs float64
	success    bool
}

// Optimizer maintains the current optimal batch size, adjusting it by
// additive increase / multiplicative decrease based on recent pool
// utilization and failure rate. Adjustments are rate-limited to at most
// once per AdjustEvery so a single bad batch cannot whipsaw the target.
type Optimizer struct {
	cfg     Config
	metrics *metrics.BatchMetrics

	mu           sync.Mutex
	current      int
	observations []observation
	lastAdjusted time.Time
}

// New builds an Optimizer seeded at cfg.InitialBatchSize.
func New(cfg Config) *Optimizer {
	cfg = cfg.withDefaults()
	o := &Optimizer{
		cfg:          cfg,
		metrics:      metrics.DefaultRegistry().Batch(),
		current:      cfg.InitialBatchSize,
		lastAdjusted: time.Now(),
	}
	o.metrics.OptimalBatchSize.Set(float64(o.current))
	return o
}

// CurrentBatchSize returns the presently advised batch size.
func (o *Optimizer) CurrentBatchSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// RecordBatch registers the outcome of one batch-insert call and, at most
// once per AdjustEvery, re-evaluates the target size against poolUtilization
// (0..1, the fraction of the connection pool currently checked out).
func (o *Optimizer) RecordBatch(size int, duration time.Duration, success bool, poolUtilization float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.observations = append(o.observations, observation{size: size, durationMs: float64(duration.Milliseconds()), success: success})
	if len(o.observations) > o.cfg.WindowSize {
		o.observations = o.observations[len(o.observations)-o.cfg.WindowSize:]
	}

	if time.Since(o.lastAdjusted) < o.cfg.AdjustEvery {
		return
	}
	o.adjustLocked(poolUtilization)
	o.lastAdjusted = time.Now()
}

func (o *Optimizer) adjustLocked(poolUtilization float64) {
	if len(o.observations) == 0 {
		return
	}

	failures := 0
	var totalDuration float64
	for _, obs := range o.observations {
		if !obs.success {
			failures++
		}
		totalDuration += obs.durationMs
	}
	failureRate := float64(failures) / float64(len(o.observations))
	avgDuration := totalDuration / float64(len(o.observations))

	o.metrics.AverageDuration.Set(avgDuration / 1000)
	o.metrics.SuccessRate.Set(1 - failureRate)

	switch {
	case failureRate > 0.1 || poolUtilization > 0.85:
		o.current = o.current / 2
	case failureRate == 0 && poolUtilization < 0.6:
		growth := o.current / 10
		if growth < 1 {
			growth = 1
		}
		o.current += growth
	}

	if o.current < o.cfg.MinBatchSize {
		o.current = o.cfg.MinBatchSize
	}
	if o.current > o.cfg.MaxBatchSize {
		o.current = o.cfg.MaxBatchSize
	}

	o.metrics.OptimalBatchSize.Set(float64(o.current))
	o.observations = o.observations[:0]
}
