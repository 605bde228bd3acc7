package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"quotefuse/internal/domain"
	"quotefuse/internal/infra"
)

// Pipeline is one venue's ordered processing chain: decode → book
// reconstruction → timestamp gate → demean/fusion via the shared publisher.
// Each venue runs its own pipeline goroutine over its own channel, so a
// stalled venue degrades only its own data. All venue-local state (books,
// stores, gate) is owned by this goroutine; nothing else touches it.
type Pipeline struct {
	venue     domain.Venue
	codec     Codec
	frames    <-chan domain.Frame
	publisher *Publisher
	resyncer  Resyncer

	books   map[string]*domain.Book
	bbo     map[string]domain.BboSample
	tickers map[string]domain.TickerSample
	trades  *domain.TradeRing
	gate    *FeedGate

	log *slog.Logger
}

// NewPipeline wires a venue codec to the shared publisher.
func NewPipeline(codec Codec, frames <-chan domain.Frame, publisher *Publisher, resyncer Resyncer) *Pipeline {
	return &Pipeline{
		venue:     codec.Venue(),
		codec:     codec,
		frames:    frames,
		publisher: publisher,
		resyncer:  resyncer,
		books:     make(map[string]*domain.Book),
		bbo:       make(map[string]domain.BboSample),
		tickers:   make(map[string]domain.TickerSample),
		trades:    domain.NewTradeRing(256),
		gate:      NewFeedGate(),
		log:       slog.Default().With(slog.String("venue", codec.Venue().String())),
	}
}

// Run consumes frames until the context is cancelled. Must run in a single
// goroutine per pipeline.
func (p *Pipeline) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline panic", slog.Any("panic", r))
			p.dumpState(fmt.Sprintf("panic_%s.json", p.venue))
			panic(r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-p.frames:
			if !ok {
				return
			}
			p.processFrame(f)
		}
	}
}

func (p *Pipeline) processFrame(f domain.Frame) {
	if f.Resync {
		// Connection boundary: everything held for this venue is stale.
		for _, b := range p.books {
			b.Reset()
		}
		p.publisher.MarkDown(p.venue)
		infra.GlobalMetrics.RecordResync()
		return
	}

	updates, err := p.codec.Decode(f.Payload, f.ReceivedAt)
	if err != nil {
		p.log.Debug("decode failed", slog.Any("error", err))
		infra.GlobalMetrics.RecordError()
		return
	}
	for i := range updates {
		p.applyUpdate(&updates[i])
	}
}

func (p *Pipeline) applyUpdate(u *Update) {
	switch u.Kind {
	case UpdateBookSnapshot:
		p.applySnapshot(u)
	case UpdateBookDelta:
		p.applyDelta(u)
	case UpdateBBO:
		p.applyBBO(u)
	case UpdateTrades:
		p.applyTrades(u)
	case UpdateTicker:
		if u.Ticker != nil {
			p.tickers[u.Symbol] = *u.Ticker
		}
	}
}

func (p *Pipeline) book(symbol string) *domain.Book {
	b, ok := p.books[symbol]
	if !ok {
		b = domain.NewBook(symbol)
		p.books[symbol] = b
	}
	return b
}

func (p *Pipeline) applySnapshot(u *Update) {
	b := p.book(u.Symbol)
	b.ApplySnapshot(u.Bids, u.Asks, u.Seq, u.EventTime)
	if u.Checksum != nil {
		b.SetChecksum(*u.Checksum)
	}
	p.log.Info("book snapshot applied",
		slog.String("symbol", u.Symbol),
		slog.Uint64("seq", u.Seq))
	p.publishBook(b, u)
}

func (p *Pipeline) applyDelta(u *Update) {
	b := p.book(u.Symbol)
	switch res := b.ApplyDelta(u.Bids, u.Asks, u.Seq, u.PrevSeq, u.EventTime); res {
	case domain.DeltaApplied:
		p.verifyChecksum(b, u)
		p.publishBook(b, u)
	case domain.DeltaDuplicate:
		// Replayed delta, already applied. Nothing to do.
	case domain.DeltaNeedSnapshot:
		// Delta before snapshot (or after a resync boundary): wait it out,
		// the worker already has a resubscribe in flight on reconnects.
		p.requestResync(u.Symbol, "delta before snapshot")
	case domain.DeltaGap:
		p.requestResync(u.Symbol, fmt.Sprintf("sequence gap: have %d, got %d (prev %d)",
			b.LastSeq(), u.Seq, u.PrevSeq))
	case domain.DeltaCrossed:
		p.requestResync(u.Symbol, "crossed book after delta")
	}
}

// Checksum mismatches alone are a soft signal: the checksum channel is
// itself lossy, so resync only fires when sequence evidence agrees.
func (p *Pipeline) verifyChecksum(b *domain.Book, u *Update) {
	if u.Checksum == nil {
		return
	}
	verifier, ok := p.codec.(ChecksumVerifier)
	if !ok {
		b.SetChecksum(*u.Checksum)
		return
	}
	if !verifier.VerifyChecksum(b, *u.Checksum) {
		p.log.Warn("book checksum mismatch",
			slog.String("symbol", u.Symbol),
			slog.Uint64("seq", u.Seq),
			slog.Int64("checksum", *u.Checksum))
	}
	b.SetChecksum(*u.Checksum)
}

func (p *Pipeline) requestResync(symbol, reason string) {
	b := p.book(symbol)
	b.Reset()
	p.publisher.MarkDown(p.venue)
	infra.GlobalMetrics.RecordResync()
	p.log.Warn("book resync requested",
		slog.String("symbol", symbol),
		slog.String("reason", reason))
	if p.resyncer != nil {
		p.resyncer.RequestResync(symbol)
	}
}

func (p *Pipeline) publishBook(b *domain.Book, u *Update) {
	if b.State() != domain.BookLive && b.State() != domain.BookSnapshotted {
		return
	}
	if b.Crossed() {
		return
	}
	mid, ok := b.Mid()
	if !ok {
		return
	}
	if p.gate.Evaluate(p.venue, domain.FeedOrderBook, u.EventTime) != GateAccept {
		return
	}
	p.publisher.Update(p.venue, domain.FeedOrderBook, mid, u.EventTime, u.ReceivedAt)
}

func (p *Pipeline) applyBBO(u *Update) {
	if u.BBO == nil {
		return
	}
	mid, ok := u.BBO.Mid()
	if !ok {
		return
	}
	if p.gate.Evaluate(p.venue, domain.FeedBBO, u.EventTime) != GateAccept {
		return
	}
	p.bbo[u.Symbol] = *u.BBO
	p.publisher.Update(p.venue, domain.FeedBBO, mid, u.EventTime, u.ReceivedAt)
}

func (p *Pipeline) applyTrades(u *Update) {
	for _, t := range u.Trades {
		if p.gate.Evaluate(p.venue, domain.FeedTrades, t.EventTime) != GateAccept {
			continue
		}
		p.trades.Push(t)
		p.publisher.Update(p.venue, domain.FeedTrades, t.Price, t.EventTime, t.ReceivedAt)
	}
}

// LastBBO returns the last accepted BBO for a symbol.
func (p *Pipeline) LastBBO(symbol string) (domain.BboSample, bool) {
	s, ok := p.bbo[symbol]
	return s, ok
}

// LastTicker returns the last venue ticker for a symbol (funding, mark and
// index prices).
func (p *Pipeline) LastTicker(symbol string) (domain.TickerSample, bool) {
	s, ok := p.tickers[symbol]
	return s, ok
}

// dumpState writes the venue-local pipeline state for post-mortem.
func (p *Pipeline) dumpState(filename string) {
	type bookDump struct {
		Symbol  string `json:"symbol"`
		State   string `json:"state"`
		LastSeq uint64 `json:"last_seq"`
		Bids    int    `json:"bids"`
		Asks    int    `json:"asks"`
	}
	dump := struct {
		Venue string     `json:"venue"`
		Books []bookDump `json:"books"`
	}{Venue: p.venue.String()}
	for sym, b := range p.books {
		nb, na := b.Depth()
		dump.Books = append(dump.Books, bookDump{
			Symbol: sym, State: b.State().String(), LastSeq: b.LastSeq(), Bids: nb, Asks: na,
		})
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filename, data, 0644)
}
