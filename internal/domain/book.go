package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BookState tracks how far a (venue, symbol) book has progressed since the
// last (re)connect.
type BookState uint8

const (
	BookUninitialized BookState = iota
	BookSnapshotted
	BookLive
)

func (s BookState) String() string {
	switch s {
	case BookSnapshotted:
		return "snapshotted"
	case BookLive:
		return "live"
	default:
		return "uninitialized"
	}
}

// Level is one price level of a book side.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book is a reconstructed depth book for one venue and symbol. Bids are kept
// strictly descending, asks strictly ascending, so best bid/ask is index 0 on
// either side. Mutated only by the owning venue pipeline.
type Book struct {
	Symbol string

	bids []Level // descending by price
	asks []Level // ascending by price

	state        BookState
	lastSeq      uint64
	lastChecksum int64
	hasChecksum  bool

	// Venue event time of the last applied update, unix nanoseconds.
	lastEventTime int64
}

// NewBook returns an empty book in Uninitialized state.
func NewBook(symbol string) *Book {
	return &Book{Symbol: symbol}
}

// State returns the reconstruction state.
func (b *Book) State() BookState { return b.state }

// LastSeq returns the sequence number of the last applied update.
func (b *Book) LastSeq() uint64 { return b.lastSeq }

// LastEventTime returns the venue event time (unix ns) of the last applied
// update, or zero if none carried one.
func (b *Book) LastEventTime() int64 { return b.lastEventTime }

// LastChecksum returns the checksum carried by the last applied update.
func (b *Book) LastChecksum() (int64, bool) { return b.lastChecksum, b.hasChecksum }

// SetChecksum records the venue-supplied checksum of the last update.
func (b *Book) SetChecksum(sum int64) {
	b.lastChecksum = sum
	b.hasChecksum = true
}

// Reset discards all book state and returns to Uninitialized. Used after a
// sequence gap or reconnect; the next applied payload must be a snapshot.
func (b *Book) Reset() {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
	b.state = BookUninitialized
	b.lastSeq = 0
	b.lastChecksum = 0
	b.hasChecksum = false
	b.lastEventTime = 0
}

// ApplySnapshot replaces the whole book and moves to Snapshotted state.
func (b *Book) ApplySnapshot(bids, asks []Level, seq uint64, eventTime int64) {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
	for _, lvl := range bids {
		if lvl.Size.IsPositive() {
			b.bids = append(b.bids, lvl)
		}
	}
	for _, lvl := range asks {
		if lvl.Size.IsPositive() {
			b.asks = append(b.asks, lvl)
		}
	}
	sort.Slice(b.bids, func(i, j int) bool { return b.bids[i].Price.GreaterThan(b.bids[j].Price) })
	sort.Slice(b.asks, func(i, j int) bool { return b.asks[i].Price.LessThan(b.asks[j].Price) })
	b.state = BookSnapshotted
	b.lastSeq = seq
	b.lastEventTime = eventTime
}

// ApplyDelta applies an incremental update. Zero size removes the level,
// nonzero replaces it. Returns false when the delta cannot be applied:
// a duplicate sequence is silently ignored (idempotent replay), a gap or a
// resulting crossed book forces the caller to resnapshot via Reset.
func (b *Book) ApplyDelta(bids, asks []Level, seq, prevSeq uint64, eventTime int64) DeltaResult {
	if b.state == BookUninitialized {
		return DeltaNeedSnapshot
	}
	if seq != 0 && seq <= b.lastSeq {
		return DeltaDuplicate
	}
	if prevSeq != 0 && prevSeq != b.lastSeq {
		return DeltaGap
	}
	for _, lvl := range bids {
		b.upsertBid(lvl)
	}
	for _, lvl := range asks {
		b.upsertAsk(lvl)
	}
	if seq != 0 {
		b.lastSeq = seq
	}
	b.lastEventTime = eventTime
	if b.Crossed() {
		return DeltaCrossed
	}
	b.state = BookLive
	return DeltaApplied
}

// DeltaResult reports the outcome of ApplyDelta.
type DeltaResult uint8

const (
	DeltaApplied DeltaResult = iota
	DeltaDuplicate
	DeltaGap
	DeltaCrossed
	DeltaNeedSnapshot
)

func (b *Book) upsertBid(lvl Level) {
	// bids descending: first index with price <= lvl.Price
	i := sort.Search(len(b.bids), func(i int) bool {
		return b.bids[i].Price.LessThanOrEqual(lvl.Price)
	})
	if i < len(b.bids) && b.bids[i].Price.Equal(lvl.Price) {
		if lvl.Size.IsZero() {
			b.bids = append(b.bids[:i], b.bids[i+1:]...)
		} else {
			b.bids[i].Size = lvl.Size
		}
		return
	}
	if lvl.Size.IsZero() {
		return
	}
	b.bids = append(b.bids, Level{})
	copy(b.bids[i+1:], b.bids[i:])
	b.bids[i] = lvl
}

func (b *Book) upsertAsk(lvl Level) {
	// asks ascending: first index with price >= lvl.Price
	i := sort.Search(len(b.asks), func(i int) bool {
		return b.asks[i].Price.GreaterThanOrEqual(lvl.Price)
	})
	if i < len(b.asks) && b.asks[i].Price.Equal(lvl.Price) {
		if lvl.Size.IsZero() {
			b.asks = append(b.asks[:i], b.asks[i+1:]...)
		} else {
			b.asks[i].Size = lvl.Size
		}
		return
	}
	if lvl.Size.IsZero() {
		return
	}
	b.asks = append(b.asks, Level{})
	copy(b.asks[i+1:], b.asks[i:])
	b.asks[i] = lvl
}

// BestBid returns the top bid level. Top-of-book is index 0, no scan.
func (b *Book) BestBid() (Level, bool) {
	if len(b.bids) == 0 {
		return Level{}, false
	}
	return b.bids[0], true
}

// BestAsk returns the top ask level.
func (b *Book) BestAsk() (Level, bool) {
	if len(b.asks) == 0 {
		return Level{}, false
	}
	return b.asks[0], true
}

// Mid returns the mid price, or false for an empty or one-sided book.
func (b *Book) Mid() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Decimal{}, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Crossed reports whether best bid >= best ask. A crossed book is corrupt
// and must be resnapshotted before anything downstream may read it.
func (b *Book) Crossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// TopLevels copies up to depth levels from each side.
func (b *Book) TopLevels(depth int) (bids, asks []Level) {
	nb := depth
	if nb > len(b.bids) {
		nb = len(b.bids)
	}
	na := depth
	if na > len(b.asks) {
		na = len(b.asks)
	}
	bids = make([]Level, nb)
	asks = make([]Level, na)
	copy(bids, b.bids[:nb])
	copy(asks, b.asks[:na])
	return bids, asks
}

// Depth returns the number of levels on each side.
func (b *Book) Depth() (bids, asks int) {
	return len(b.bids), len(b.asks)
}
