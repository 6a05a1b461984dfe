package poolmonitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorHealthyBelowThreshold(t *testing.T) {
	m := &Monitor{}
	m.last.Store(Snapshot{Active: 5, Max: 20, Utilization: 0.25})
	assert.True(t, m.Healthy())
}

func TestMonitorUnhealthyNearSaturation(t *testing.T) {
	m := &Monitor{}
	m.last.Store(Snapshot{Active: 19, Max: 20, Utilization: 0.97})
	assert.False(t, m.Healthy())
}

func TestMonitorLatestReturnsStoredSnapshot(t *testing.T) {
	m := &Monitor{}
	snap := Snapshot{Active: 3, Idle: 7, Max: 10}
	m.last.Store(snap)
	assert.Equal(t, snap, m.Latest())
}
