package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockAllowsBeforeAnyCancel(t *testing.T) {
	c := NewQuoteClock(50 * time.Millisecond)
	assert.True(t, c.CanQuote(time.Now()))
	assert.Zero(t, c.Remaining(time.Now()))
}

func TestClockBlocksForFloorAfterCancel(t *testing.T) {
	c := NewQuoteClock(50 * time.Millisecond)
	t0 := time.Now()

	c.OnCancelSent(t0)

	assert.False(t, c.CanQuote(t0.Add(10*time.Millisecond)))
	assert.Equal(t, 40*time.Millisecond, c.Remaining(t0.Add(10*time.Millisecond)))
	assert.True(t, c.CanQuote(t0.Add(50*time.Millisecond)))
}

func TestClockExtendsToFloorNotBeyond(t *testing.T) {
	c := NewQuoteClock(50 * time.Millisecond)
	t0 := time.Now()

	c.OnCancelSent(t0)

	// A second cancel 30ms in: 20ms of the old deadline remains, the new
	// deadline lands at cancel+50ms, not old-deadline+50ms.
	t1 := t0.Add(30 * time.Millisecond)
	c.OnCancelSent(t1)

	assert.Equal(t, 50*time.Millisecond, c.Remaining(t1))
	assert.True(t, c.CanQuote(t1.Add(50*time.Millisecond)))
}

func TestClockNeverShortensDeadline(t *testing.T) {
	c := NewQuoteClock(50 * time.Millisecond)
	t0 := time.Now()

	c.OnCancelSent(t0.Add(100 * time.Millisecond))
	// An out-of-order cancel timestamp must not pull the deadline back in.
	c.OnCancelSent(t0)

	assert.False(t, c.CanQuote(t0.Add(120*time.Millisecond)))
	assert.True(t, c.CanQuote(t0.Add(150*time.Millisecond)))
}

func TestClockDefaultFloor(t *testing.T) {
	c := NewQuoteClock(0)
	t0 := time.Now()
	c.OnCancelSent(t0)
	assert.Equal(t, 50*time.Millisecond, c.Remaining(t0))
}
