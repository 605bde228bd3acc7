package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BboSample is a venue's latest best-bid/offer for one symbol, stamped with
// both the venue event time and the local receipt instant.
type BboSample struct {
	Venue      Venue
	Symbol     string
	BidPrice   decimal.Decimal
	BidSize    decimal.Decimal
	AskPrice   decimal.Decimal
	AskSize    decimal.Decimal
	EventTime  int64 // venue clock, unix ns; zero when the venue omits it
	ReceivedAt time.Time
}

// Mid returns the BBO mid price, or false when either side is missing.
func (s BboSample) Mid() (decimal.Decimal, bool) {
	if !s.BidPrice.IsPositive() || !s.AskPrice.IsPositive() {
		return decimal.Decimal{}, false
	}
	return s.BidPrice.Add(s.AskPrice).Div(decimal.NewFromInt(2)), true
}

// TradeSide is the aggressor side of a trade.
type TradeSide uint8

const (
	TradeBuy TradeSide = iota
	TradeSell
)

func (s TradeSide) String() string {
	if s == TradeSell {
		return "sell"
	}
	return "buy"
}

// TradeSample is one public trade print.
type TradeSample struct {
	Venue      Venue
	Symbol     string
	Price      decimal.Decimal
	Size       decimal.Decimal
	Side       TradeSide
	EventTime  int64
	ReceivedAt time.Time
}

// TickerSample carries the slower-moving venue ticker fields kept for the
// journal and funding awareness. Not part of the fusion path.
type TickerSample struct {
	Venue       Venue
	Symbol      string
	LastPrice   decimal.Decimal
	MarkPrice   decimal.Decimal
	IndexPrice  decimal.Decimal
	FundingRate decimal.Decimal
	Turnover24h decimal.Decimal
	EventTime   int64
	ReceivedAt  time.Time
}

// TradeRing is a bounded ring of the most recent trades for one venue.
// Oldest entries are overwritten once capacity is reached.
type TradeRing struct {
	buf   []TradeSample
	next  int
	count int
}

// NewTradeRing creates a ring holding up to capacity trades.
func NewTradeRing(capacity int) *TradeRing {
	if capacity <= 0 {
		capacity = 256
	}
	return &TradeRing{buf: make([]TradeSample, capacity)}
}

// Push appends a trade, evicting the oldest when full.
func (r *TradeRing) Push(t TradeSample) {
	r.buf[r.next] = t
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored trades.
func (r *TradeRing) Len() int { return r.count }

// Last returns up to n most recent trades, newest first.
func (r *TradeRing) Last(n int) []TradeSample {
	if n > r.count {
		n = r.count
	}
	out := make([]TradeSample, 0, n)
	idx := r.next - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx += len(r.buf)
		}
		out = append(out, r.buf[idx])
		idx--
	}
	return out
}
