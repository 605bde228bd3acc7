package engine

import (
	"math"
	"time"

	"quotefuse/internal/domain"

	"github.com/shopspring/decimal"
)

// DemeanTracker maintains a per-venue price offset relative to the fused
// reference. Venues with a persistent quoting bias (different funding,
// different fee tiers, slightly different contracts) otherwise drag the pool
// toward themselves. The offset is an EWMA of raw − reference, decayed
// toward zero when a venue goes quiet so stale bias evidence expires.
//
// Known limitation: during a fast broad dislocation every venue moves at
// once and the tracker lags; it damps persistent bias, it is not a trust
// weight.
type DemeanTracker struct {
	alpha    decimal.Decimal
	halfLife time.Duration
	offsets  map[domain.Venue]*demeanState
}

type demeanState struct {
	offset    decimal.Decimal
	updatedAt time.Time
}

// NewDemeanTracker creates a tracker with the given smoothing factor
// (0 < alpha <= 1, share of each new observation) and decay half-life.
func NewDemeanTracker(alpha float64, halfLife time.Duration) *DemeanTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	if halfLife <= 0 {
		halfLife = 8 * time.Second
	}
	return &DemeanTracker{
		alpha:    decimal.NewFromFloat(alpha),
		halfLife: halfLife,
		offsets:  make(map[domain.Venue]*demeanState),
	}
}

// Observe blends a new raw-vs-reference sample into the venue's offset. The
// first sample seeds the offset whole; later samples are alpha-blended
// against the decayed estimate.
func (d *DemeanTracker) Observe(venue domain.Venue, raw, reference decimal.Decimal, now time.Time) {
	diff := raw.Sub(reference)
	st, ok := d.offsets[venue]
	if !ok {
		d.offsets[venue] = &demeanState{offset: diff, updatedAt: now}
		return
	}
	st.offset = d.decayed(st, now)
	one := decimal.NewFromInt(1)
	st.offset = st.offset.Mul(one.Sub(d.alpha)).Add(diff.Mul(d.alpha))
	st.updatedAt = now
}

// Adjust returns the venue's raw price with its current offset removed.
// An unseen venue passes through unchanged.
func (d *DemeanTracker) Adjust(venue domain.Venue, raw decimal.Decimal, now time.Time) decimal.Decimal {
	st, ok := d.offsets[venue]
	if !ok {
		return raw
	}
	return raw.Sub(d.decayed(st, now))
}

// Offset returns the venue's current (decayed) offset.
func (d *DemeanTracker) Offset(venue domain.Venue, now time.Time) decimal.Decimal {
	st, ok := d.offsets[venue]
	if !ok {
		return decimal.Decimal{}
	}
	return d.decayed(st, now)
}

func (d *DemeanTracker) decayed(st *demeanState, now time.Time) decimal.Decimal {
	if st.updatedAt.IsZero() || st.offset.IsZero() {
		return st.offset
	}
	elapsed := now.Sub(st.updatedAt)
	if elapsed <= 0 {
		return st.offset
	}
	factor := math.Pow(0.5, float64(elapsed)/float64(d.halfLife))
	return st.offset.Mul(decimal.NewFromFloat(factor))
}
