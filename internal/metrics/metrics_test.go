package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotAggregates(t *testing.T) {
	m := New()
	m.RecordToken(5 * time.Millisecond)
	m.RecordToken(50 * time.Millisecond)
	m.RecordGeneration(100 * time.Millisecond)
	m.RecordGeneration(300 * time.Millisecond)
	m.RecordAbort()
	m.RecordReset()
	m.RecordQueueFull()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.TokensGenerated)
	assert.Equal(t, uint64(2), snap.GenerationCount)
	assert.Equal(t, uint64(1), snap.AbortCount)
	assert.Equal(t, uint64(1), snap.ResetCount)
	assert.Equal(t, uint64(1), snap.QueueFullCount)
	assert.Equal(t, 200*time.Millisecond, snap.AvgGenLatency)
	assert.GreaterOrEqual(t, snap.Uptime, time.Duration(0))

	// Buckets are cumulative: 5ms lands in <=10ms and above, 50ms only
	// in <=100ms and above.
	require.Len(t, snap.TokenLatencyHist, len(LatencyBuckets))
	assert.Equal(t, uint64(0), snap.TokenLatencyHist[3]) // <=1ms
	assert.Equal(t, uint64(1), snap.TokenLatencyHist[4]) // <=10ms
	assert.Equal(t, uint64(2), snap.TokenLatencyHist[5]) // <=100ms
	assert.Equal(t, uint64(2), snap.TokenLatencyHist[7]) // <=10s
}

func TestSnapshotZeroGenerationsAvoidsDivideByZero(t *testing.T) {
	m := New()
	snap := m.Snapshot()
	assert.Equal(t, time.Duration(0), snap.AvgGenLatency)
}
