package engine

import (
	"sync"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/infra"

	"github.com/shopspring/decimal"
)

type venueQuote struct {
	raw        decimal.Decimal
	eventTime  int64
	receivedAt time.Time
	live       bool
}

// Publisher fuses per-venue adjusted prices into one reference and
// broadcasts it. Venue pipelines call Update concurrently; the critical
// section is a handful of decimal operations, never I/O. Subscribers receive
// on buffered channels with non-blocking sends — a slow consumer loses
// events, it never stalls the feeds.
type Publisher struct {
	mu        sync.Mutex
	symbol    string
	fuser     Fuser
	demean    *DemeanTracker
	freshness time.Duration
	venues    map[domain.Venue]*venueQuote
	subs      []chan domain.ReferenceEvent
	last      domain.ReferenceEvent
	hasLast   bool
	now       func() time.Time
}

// NewPublisher creates a publisher for one symbol.
func NewPublisher(symbol string, fuser Fuser, demean *DemeanTracker, freshness time.Duration) *Publisher {
	if fuser == nil {
		fuser = PooledMean{}
	}
	if freshness <= 0 {
		freshness = 1500 * time.Millisecond
	}
	return &Publisher{
		symbol:    symbol,
		fuser:     fuser,
		demean:    demean,
		freshness: freshness,
		venues:    make(map[domain.Venue]*venueQuote),
		now:       time.Now,
	}
}

// Subscribe registers a consumer. Must be called before the feeds start.
func (p *Publisher) Subscribe(buffer int) <-chan domain.ReferenceEvent {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan domain.ReferenceEvent, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// MarkDown excludes a venue from fusion until its next accepted update,
// e.g. across a disconnect or resnapshot.
func (p *Publisher) MarkDown(venue domain.Venue) {
	p.mu.Lock()
	if q, ok := p.venues[venue]; ok {
		q.live = false
	}
	p.mu.Unlock()
}

// Update records a venue's latest validated price and recomputes the fused
// reference. Returns the emitted event, or false when emission was
// suppressed (empty live set — publishing nothing beats publishing wrong).
func (p *Publisher) Update(venue domain.Venue, kind domain.FeedKind, raw decimal.Decimal,
	eventTime int64, receivedAt time.Time) (domain.ReferenceEvent, bool) {

	if !raw.IsPositive() {
		return domain.ReferenceEvent{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	q, ok := p.venues[venue]
	if !ok {
		q = &venueQuote{}
		p.venues[venue] = q
	}
	q.raw = raw
	q.eventTime = eventTime
	q.receivedAt = receivedAt
	q.live = true

	inputs := make([]FusionInput, 0, len(p.venues))
	for v, vq := range p.venues {
		if !vq.live {
			continue
		}
		if now.Sub(vq.receivedAt) > p.freshness {
			continue
		}
		inputs = append(inputs, FusionInput{
			Venue: v,
			Price: p.demean.Adjust(v, vq.raw, now),
		})
	}

	fused, ok := p.fuser.Fuse(inputs)
	if !ok || !fused.IsPositive() {
		return domain.ReferenceEvent{}, false
	}

	ev := domain.ReferenceEvent{
		Price:      fused,
		Source:     venue,
		Feed:       kind,
		Symbol:     p.symbol,
		EventTime:  eventTime,
		ReceivedAt: receivedAt,
	}
	p.last = ev
	p.hasLast = true

	// The triggering venue's bias estimate learns from the reference it just
	// produced; single-venue pools contribute nothing (raw == fused).
	p.demean.Observe(venue, raw, fused, now)

	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			// Consumer lagging; reference events are latest-value, skip.
		}
	}
	infra.GlobalMetrics.RecordReference()
	infra.GlobalMetrics.RecordFrame(now.Sub(receivedAt).Nanoseconds())
	return ev, true
}

// Last returns the most recently emitted reference.
func (p *Publisher) Last() (domain.ReferenceEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// LiveVenues returns how many venues currently qualify for fusion.
func (p *Publisher) LiveVenues() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	n := 0
	for _, vq := range p.venues {
		if vq.live && now.Sub(vq.receivedAt) <= p.freshness {
			n++
		}
	}
	return n
}
