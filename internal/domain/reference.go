package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferenceEvent is one fused fair-value estimate. Immutable once emitted;
// consumers never mutate it. Source identifies the venue whose update
// triggered the recomputation, with both its clocks so downstream latency
// analysis can split network delay from matching-engine delay.
type ReferenceEvent struct {
	Price      decimal.Decimal
	Source     Venue
	Feed       FeedKind
	Symbol     string
	EventTime  int64     // source venue clock, unix ns; zero if absent
	ReceivedAt time.Time // local receipt instant of the triggering frame
}
