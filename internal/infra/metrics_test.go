package infra

import (
	"testing"
)

func TestMetrics_RecordFrame(t *testing.T) {
	m := &Metrics{}

	m.RecordFrame(1000)
	m.RecordFrame(2000)
	m.RecordFrame(3000)

	snap := m.Snapshot()

	if snap.FramesProcessed != 3 {
		t.Errorf("Expected 3 frames, got %d", snap.FramesProcessed)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := &Metrics{}

	m.RecordStaleDrop()
	m.RecordStaleDrop()
	m.RecordResync()
	m.RecordReference()
	m.RecordQuote()
	m.RecordCancel()
	m.RecordFill()
	m.RecordError()

	snap := m.Snapshot()
	if snap.FramesDroppedOld != 2 {
		t.Errorf("Expected 2 stale drops, got %d", snap.FramesDroppedOld)
	}
	if snap.Resyncs != 1 {
		t.Errorf("Expected 1 resync, got %d", snap.Resyncs)
	}
	if snap.ReferencesEmitted != 1 || snap.QuotesSubmitted != 1 ||
		snap.CancelsSubmitted != 1 || snap.Fills != 1 || snap.ErrorsTotal != 1 {
		t.Errorf("Unexpected counter snapshot: %+v", snap)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordFrame(5000)
	m.RecordResync()
	m.IncrementConnections()
	m.Reset()

	snap := m.Snapshot()
	if snap.FramesProcessed != 0 || snap.Resyncs != 0 || snap.ActiveConnections != 0 {
		t.Errorf("Expected zeroed metrics after reset, got %+v", snap)
	}
}
