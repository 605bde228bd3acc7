package engine

import (
	"log/slog"

	"quotefuse/internal/domain"
	"quotefuse/internal/infra"
)

// GateDecision is the outcome of evaluating one frame against the timestamp
// gate.
type GateDecision uint8

const (
	GateAccept GateDecision = iota
	GateReject
)

type gateKey struct {
	venue domain.Venue
	kind  domain.FeedKind
}

type gateEntry struct {
	lastEventTime int64
	rejectCount   uint64
}

// FeedGate enforces per-venue event-time monotonicity. A frame whose venue
// event time is strictly older than the last accepted one for that venue and
// feed is dropped; local state never regresses. Monotonicity is never
// compared across venues. Not safe for concurrent use; each venue pipeline
// owns its own instance.
type FeedGate struct {
	entries map[gateKey]*gateEntry
}

// NewFeedGate creates an empty gate.
func NewFeedGate() *FeedGate {
	return &FeedGate{entries: make(map[gateKey]*gateEntry)}
}

// Evaluate accepts or rejects a frame by venue event time. A zero event time
// means the venue did not stamp the frame; those pass on receipt order.
func (g *FeedGate) Evaluate(venue domain.Venue, kind domain.FeedKind, eventTime int64) GateDecision {
	if eventTime == 0 {
		return GateAccept
	}
	key := gateKey{venue: venue, kind: kind}
	e, ok := g.entries[key]
	if !ok {
		g.entries[key] = &gateEntry{lastEventTime: eventTime}
		return GateAccept
	}
	if eventTime < e.lastEventTime {
		e.rejectCount++
		logStaleDrop(venue, kind, eventTime, e.lastEventTime, e.rejectCount)
		infra.GlobalMetrics.RecordStaleDrop()
		return GateReject
	}
	e.lastEventTime = eventTime
	return GateAccept
}

// LastAccepted returns the last accepted event time for a venue and feed.
func (g *FeedGate) LastAccepted(venue domain.Venue, kind domain.FeedKind) int64 {
	if e, ok := g.entries[gateKey{venue: venue, kind: kind}]; ok {
		return e.lastEventTime
	}
	return 0
}

// Rejects returns the running reject counter for a venue and feed.
func (g *FeedGate) Rejects(venue domain.Venue, kind domain.FeedKind) uint64 {
	if e, ok := g.entries[gateKey{venue: venue, kind: kind}]; ok {
		return e.rejectCount
	}
	return 0
}

// Stale drops happen in bursts around reconnects; log the first few, then
// sample so the log stays readable.
func logStaleDrop(venue domain.Venue, kind domain.FeedKind, eventTime, lastTime int64, count uint64) {
	if count <= 3 || count%100 == 0 {
		slog.Warn("dropping stale update",
			slog.String("venue", venue.String()),
			slog.String("feed", kind.String()),
			slog.Int64("event_time", eventTime),
			slog.Int64("last_accepted", lastTime),
			slog.Uint64("drops", count),
		)
	}
}
