package strategy

import (
	"sync"
	"time"
)

// QuoteClock gates order submissions after cancels. Every cancel sent pushes
// the earliest allowed submission out to at least the cooldown floor from
// that cancel; an already-later deadline is never shortened and never
// stacked further into the future. Cancels themselves are never gated, so
// pulling quotes stays instant no matter what the clock says.
type QuoteClock struct {
	mu    sync.Mutex
	floor time.Duration
	until time.Time
	now   func() time.Time
}

// NewQuoteClock creates a clock with the given cooldown floor.
func NewQuoteClock(floor time.Duration) *QuoteClock {
	if floor <= 0 {
		floor = 50 * time.Millisecond
	}
	return &QuoteClock{floor: floor, now: time.Now}
}

// OnCancelSent extends the submission deadline to at least floor past the
// cancel instant.
func (c *QuoteClock) OnCancelSent(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := at.Add(c.floor)
	if deadline.After(c.until) {
		c.until = deadline
	}
}

// CanQuote reports whether submissions are currently allowed.
func (c *QuoteClock) CanQuote(at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !at.Before(c.until)
}

// Remaining returns how long until submissions unlock, zero when unlocked.
func (c *QuoteClock) Remaining(at time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !at.Before(c.until) {
		return 0
	}
	return c.until.Sub(at)
}
