// Package metrics tracks control-plane operational statistics: atomic
// counters for generation activity plus a point-in-time Snapshot
// accessor.
package metrics

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the token-latency histogram buckets in
// nanoseconds. Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics accumulates counters for the lifetime of one engine instance.
// All fields are safe for concurrent use from the engine and shell
// threads.
type Metrics struct {
	TokensGenerated   atomic.Uint64
	GenerationCount   atomic.Uint64
	AbortCount        atomic.Uint64
	ResetCount        atomic.Uint64
	QueueFullCount    atomic.Uint64
	TotalGenLatencyNs atomic.Uint64

	// Token latency histogram (cumulative counts): bucket[i] counts
	// tokens whose inter-token latency was <= LatencyBuckets[i].
	TokenLatencyHist [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
}

// New creates a Metrics instance, stamping its start time.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordToken accounts for one streamed token and its inter-token
// latency.
func (m *Metrics) RecordToken(latency time.Duration) {
	m.TokensGenerated.Add(1)
	m.recordLatency(uint64(latency.Nanoseconds()))
}

func (m *Metrics) recordLatency(ns uint64) {
	for i, bound := range LatencyBuckets {
		if ns <= bound {
			m.TokenLatencyHist[i].Add(1)
		}
	}
}

// RecordGeneration accounts for one completed (or aborted) generation and
// its wall-clock duration.
func (m *Metrics) RecordGeneration(d time.Duration) {
	m.GenerationCount.Add(1)
	m.TotalGenLatencyNs.Add(uint64(d.Nanoseconds()))
}

// RecordAbort accounts for a generation cancelled by a Stop, Reset or
// Shutdown command.
func (m *Metrics) RecordAbort() { m.AbortCount.Add(1) }

// RecordReset accounts for a completed device reset.
func (m *Metrics) RecordReset() { m.ResetCount.Add(1) }

// RecordQueueFull accounts for a dropped request due to a full task
// queue.
func (m *Metrics) RecordQueueFull() { m.QueueFullCount.Add(1) }

// Snapshot is a point-in-time, race-free read of every counter.
type Snapshot struct {
	TokensGenerated  uint64
	GenerationCount  uint64
	AbortCount       uint64
	ResetCount       uint64
	QueueFullCount   uint64
	AvgGenLatency    time.Duration
	TokenLatencyHist []uint64
	Uptime           time.Duration
}

// Snapshot reads every counter into a Snapshot.
func (m *Metrics) Snapshot() Snapshot {
	gens := m.GenerationCount.Load()
	var avg time.Duration
	if gens > 0 {
		avg = time.Duration(m.TotalGenLatencyNs.Load() / gens)
	}
	hist := make([]uint64, numLatencyBuckets)
	for i := range hist {
		hist[i] = m.TokenLatencyHist[i].Load()
	}
	return Snapshot{
		TokensGenerated:  m.TokensGenerated.Load(),
		GenerationCount:  gens,
		AbortCount:       m.AbortCount.Load(),
		ResetCount:       m.ResetCount.Load(),
		QueueFullCount:   m.QueueFullCount.Load(),
		AvgGenLatency:    avg,
		TokenLatencyHist: hist,
		Uptime:           time.Since(time.Unix(0, m.StartTime.Load())),
	}
}
