package engine

import (
	"testing"
	"time"

	"quotefuse/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDemeanUnseenVenuePassesThrough(t *testing.T) {
	tr := NewDemeanTracker(0.1, 8*time.Second)
	now := time.Now()

	assert.True(t, d("100").Equal(tr.Adjust(domain.VenueOKX, d("100"), now)))
	assert.True(t, tr.Offset(domain.VenueOKX, now).IsZero())
}

func TestDemeanConvergesTowardBias(t *testing.T) {
	tr := NewDemeanTracker(0.5, 8*time.Second)
	now := time.Now()

	// Venue prints consistently 2.0 above the reference.
	for i := 0; i < 20; i++ {
		tr.Observe(domain.VenueBybit, d("102"), d("100"), now)
	}

	off := tr.Offset(domain.VenueBybit, now)
	assert.True(t, off.GreaterThan(d("1.99")), "offset %s", off)
	assert.True(t, off.LessThanOrEqual(d("2")), "offset %s", off)

	adj := tr.Adjust(domain.VenueBybit, d("102"), now)
	assert.True(t, adj.Sub(d("100")).Abs().LessThan(d("0.01")), "adjusted %s", adj)
}

func TestDemeanDecaysWhenQuiet(t *testing.T) {
	tr := NewDemeanTracker(1.0, 8*time.Second)
	t0 := time.Now()

	tr.Observe(domain.VenueBinance, d("104"), d("100"), t0)
	assert.True(t, d("4").Equal(tr.Offset(domain.VenueBinance, t0)))

	// One half-life later the offset has halved.
	half := tr.Offset(domain.VenueBinance, t0.Add(8*time.Second))
	assert.True(t, half.Sub(d("2")).Abs().LessThan(d("0.001")), "decayed %s", half)

	// Far past the window the bias evidence is effectively gone.
	far := tr.Offset(domain.VenueBinance, t0.Add(80*time.Second))
	assert.True(t, far.LessThan(d("0.01")), "decayed %s", far)
}

func TestDemeanObserveDecaysBeforeBlending(t *testing.T) {
	tr := NewDemeanTracker(0.5, 8*time.Second)
	t0 := time.Now()

	tr.Observe(domain.VenueOKX, d("104"), d("100"), t0)

	// 8s later a zero-diff sample blends against the decayed offset, not the
	// raw stored one: 0.5*(4*0.5) + 0.5*0 = 1.
	tr.Observe(domain.VenueOKX, d("100"), d("100"), t0.Add(8*time.Second))
	off := tr.Offset(domain.VenueOKX, t0.Add(8*time.Second))
	assert.True(t, off.Sub(d("1")).Abs().LessThan(d("0.001")), "offset %s", off)
}

func TestDemeanFirstSampleSeedsOffset(t *testing.T) {
	tr := NewDemeanTracker(0.1, 8*time.Second)
	now := time.Now()

	// A conventional EWMA start: no prior estimate to blend against.
	tr.Observe(domain.VenueBybit, d("103"), d("100"), now)
	assert.True(t, d("3").Equal(tr.Offset(domain.VenueBybit, now)))
}

func TestDemeanInvalidParamsFallBack(t *testing.T) {
	tr := NewDemeanTracker(-1, 0)
	now := time.Now()

	tr.Observe(domain.VenueGate, d("101"), d("100"), now)
	assert.True(t, d("1").Equal(tr.Offset(domain.VenueGate, now)))

	// The second sample blends with the fallback alpha of 0.1.
	tr.Observe(domain.VenueGate, d("100"), d("100"), now)
	off := tr.Offset(domain.VenueGate, now)
	assert.True(t, off.Sub(d("0.9")).Abs().LessThan(d("0.001")), "offset %s", off)
}
