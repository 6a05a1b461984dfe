// Package poolmonitor implements the connection-pool health monitor (C9):
// a background sampler that reads pgxpool's stat snapshot, feeds it to the
// Prometheus database metrics, and exposes a health indicator the batch-size
// optimizer and the readiness endpoint both consume.
package poolmonitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// Snapshot is one sampling of pool state.
type Snapshot struct {
	Active       int32
	Idle         int32
	Max          int32
	WaitCount    int64
	Utilization  float64
}

// Monitor periodically samples a pgxpool.Pool.
type Monitor struct {
	pool     *pgxpool.Pool
	interval time.Duration
	metrics  *metrics.DatabaseMetrics
	logger   *slog.Logger

	last atomic.Value // Snapshot
}

// New builds a Monitor sampling every interval (default 5s if <= 0).
func New(pool *pgxpool.Pool, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		pool:     pool,
		interval: interval,
		metrics:  metrics.DefaultRegistry().Infra().DB,
		logger:   logger,
	}
	m.last.Store(Snapshot{})
	return m
}

// Run samples the pool on a ticker until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	stat := m.pool.Stat()
	snap := Snapshot{
		Active:    stat.AcquiredConns(),
		Idle:      stat.IdleConns(),
		Max:       stat.MaxConns(),
		WaitCount: stat.EmptyAcquireCount(),
	}
	if snap.Max > 0 {
		snap.Utilization = float64(snap.Active) / float64(snap.Max)
	}
	m.last.Store(snap)

	m.metrics.ConnectionsActive.Set(float64(snap.Active))
	m.metrics.ConnectionsIdle.Set(float64(snap.Idle))

	if snap.Utilization > 0.9 {
		m.logger.Warn("poolmonitor: connection pool near saturation", "active", snap.Active, "max", snap.Max)
	}
}

// Latest returns the most recent sampled snapshot.
func (m *Monitor) Latest() Snapshot {
	return m.last.Load().(Snapshot)
}

// Utilization returns the most recently sampled fraction of the pool
// currently checked out, for consumers that only need the scalar (e.g. the
// batch-size optimizer's feedback loop).
func (m *Monitor) Utilization() float64 {
	return m.Latest().Utilization
}

// Healthy reports whether the pool has headroom: utilization below 0.95
// and at least one idle or acquirable connection.
func (m *Monitor) Healthy() bool {
	s := m.Latest()
	return s.Utilization < 0.95
}
