package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety; reads never block the pipeline.
type Metrics struct {
	// Counters
	framesProcessed   atomic.Uint64
	framesDroppedOld  atomic.Uint64
	resyncs           atomic.Uint64
	referencesEmitted atomic.Uint64
	quotesSubmitted   atomic.Uint64
	cancelsSubmitted  atomic.Uint64
	fills             atomic.Uint64
	errorsTotal       atomic.Uint64

	// Wire-to-publish latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFrame records one processed frame with its wire-to-publish latency.
func (m *Metrics) RecordFrame(latencyNs int64) {
	m.framesProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordStaleDrop records a frame rejected by the timestamp gate.
func (m *Metrics) RecordStaleDrop() {
	m.framesDroppedOld.Add(1)
}

// RecordResync records a book resnapshot.
func (m *Metrics) RecordResync() {
	m.resyncs.Add(1)
}

// RecordReference records a published fused reference.
func (m *Metrics) RecordReference() {
	m.referencesEmitted.Add(1)
}

// RecordQuote records a submitted order.
func (m *Metrics) RecordQuote() {
	m.quotesSubmitted.Add(1)
}

// RecordCancel records a submitted cancel.
func (m *Metrics) RecordCancel() {
	m.cancelsSubmitted.Add(1)
}

// RecordFill records a confirmed fill.
func (m *Metrics) RecordFill() {
	m.fills.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FramesProcessed   uint64
	FramesDroppedOld  uint64
	Resyncs           uint64
	ReferencesEmitted uint64
	QuotesSubmitted   uint64
	CancelsSubmitted  uint64
	Fills             uint64
	ErrorsTotal       uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		FramesProcessed:   m.framesProcessed.Load(),
		FramesDroppedOld:  m.framesDroppedOld.Load(),
		Resyncs:           m.resyncs.Load(),
		ReferencesEmitted: m.referencesEmitted.Load(),
		QuotesSubmitted:   m.quotesSubmitted.Load(),
		CancelsSubmitted:  m.cancelsSubmitted.Load(),
		Fills:             m.fills.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.framesProcessed.Store(0)
	m.framesDroppedOld.Store(0)
	m.resyncs.Store(0)
	m.referencesEmitted.Store(0)
	m.quotesSubmitted.Store(0)
	m.cancelsSubmitted.Store(0)
	m.fills.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
