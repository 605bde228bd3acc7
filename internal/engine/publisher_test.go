package engine

import (
	"testing"
	"time"

	"quotefuse/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(now time.Time) *Publisher {
	p := NewPublisher("BTC-USDT", PooledMean{}, NewDemeanTracker(0.1, 8*time.Second), 1500*time.Millisecond)
	p.now = func() time.Time { return now }
	return p
}

func TestPublisherTwoVenueMean(t *testing.T) {
	now := time.Now()
	p := newTestPublisher(now)

	_, ok := p.Update(domain.VenueOKX, domain.FeedOrderBook, d("100.5"), 1, now)
	require.True(t, ok)

	ev, ok := p.Update(domain.VenueBybit, domain.FeedOrderBook, d("101"), 2, now)
	require.True(t, ok)
	assert.True(t, d("100.75").Equal(ev.Price), "fused %s", ev.Price)
	assert.Equal(t, domain.VenueBybit, ev.Source)
	assert.Equal(t, "BTC-USDT", ev.Symbol)
	assert.Equal(t, 2, p.LiveVenues())
}

func TestPublisherExcludesStaleVenue(t *testing.T) {
	now := time.Now()
	p := newTestPublisher(now)

	old := now.Add(-2 * time.Second)
	p.Update(domain.VenueOKX, domain.FeedOrderBook, d("100"), 1, old)

	// OKX's receipt time is past the freshness window; only Bybit fuses.
	ev, ok := p.Update(domain.VenueBybit, domain.FeedOrderBook, d("104"), 2, now)
	require.True(t, ok)
	assert.True(t, d("104").Equal(ev.Price), "fused %s", ev.Price)
	assert.Equal(t, 1, p.LiveVenues())
}

func TestPublisherMarkDownExcludesVenue(t *testing.T) {
	now := time.Now()
	p := newTestPublisher(now)

	p.Update(domain.VenueOKX, domain.FeedOrderBook, d("100"), 1, now)
	p.Update(domain.VenueBybit, domain.FeedOrderBook, d("102"), 2, now)
	p.MarkDown(domain.VenueOKX)

	// Bybit quotes alone. Fusing 100 and 102 taught it a +1 offset, so its
	// solo quote demeans back to the last fused level instead of dragging
	// the reference to its own print.
	ev, ok := p.Update(domain.VenueBybit, domain.FeedOrderBook, d("102"), 3, now)
	require.True(t, ok)
	assert.True(t, d("101").Equal(ev.Price), "fused %s", ev.Price)

	// The venue rejoins on its next accepted update.
	ev, ok = p.Update(domain.VenueOKX, domain.FeedOrderBook, d("100"), 4, now)
	require.True(t, ok)
	assert.True(t, d("100.5").Equal(ev.Price), "fused %s", ev.Price)
}

func TestPublisherSuppressesNonPositive(t *testing.T) {
	now := time.Now()
	p := newTestPublisher(now)

	_, ok := p.Update(domain.VenueOKX, domain.FeedOrderBook, d("0"), 1, now)
	assert.False(t, ok)
	_, ok = p.Last()
	assert.False(t, ok)
}

func TestPublisherBroadcastNonBlocking(t *testing.T) {
	now := time.Now()
	p := newTestPublisher(now)

	sub := p.Subscribe(1)

	p.Update(domain.VenueOKX, domain.FeedOrderBook, d("100"), 1, now)
	// The subscriber buffer is full; the second emission is dropped, not
	// blocked on.
	done := make(chan struct{})
	go func() {
		p.Update(domain.VenueOKX, domain.FeedOrderBook, d("101"), 2, now)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	ev := <-sub
	assert.True(t, d("100").Equal(ev.Price))

	last, ok := p.Last()
	require.True(t, ok)
	assert.True(t, d("101").Equal(last.Price))
}

func TestPublisherLastTracksEmissions(t *testing.T) {
	now := time.Now()
	p := newTestPublisher(now)

	_, ok := p.Last()
	assert.False(t, ok)

	p.Update(domain.VenueBinance, domain.FeedBBO, d("99"), 7, now)
	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, domain.FeedBBO, last.Feed)
	assert.Equal(t, int64(7), last.EventTime)
}
