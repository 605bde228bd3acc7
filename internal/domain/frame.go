package domain

import "time"

// Frame is one decoded message handed from a stream worker to the pipeline.
// The payload is owned by the worker until it crosses the channel; the
// pipeline processes it once and discards it.
type Frame struct {
	Venue   Venue
	Payload []byte
	// ReceivedAt is the local receipt instant. time.Time carries a monotonic
	// reading, so differences against it are safe for latency measurement.
	ReceivedAt time.Time
	// Resync marks a (re)connect boundary: everything the pipeline holds for
	// this venue is stale and must be rebuilt from the next snapshot.
	Resync bool
}
