package engine

import (
	"time"

	"quotefuse/internal/domain"
)

// UpdateKind classifies a decoded venue update.
type UpdateKind uint8

const (
	UpdateBookSnapshot UpdateKind = iota
	UpdateBookDelta
	UpdateBBO
	UpdateTrades
	UpdateTicker
)

// Update is one typed, venue-decoded event. Workers decode straight into
// this shape; nothing downstream ever touches venue JSON.
type Update struct {
	Kind   UpdateKind
	Symbol string

	// Book payloads
	Bids     []domain.Level
	Asks     []domain.Level
	Seq      uint64
	PrevSeq  uint64
	Checksum *int64

	// Sample payloads
	BBO    *domain.BboSample
	Trades []domain.TradeSample
	Ticker *domain.TickerSample

	EventTime  int64 // venue clock, unix ns; zero when absent
	ReceivedAt time.Time
}

// Codec decodes one venue's wire payloads into typed updates. A payload the
// codec does not care about (pongs, subscribe acks) decodes to an empty
// slice, not an error.
type Codec interface {
	Venue() domain.Venue
	Decode(payload []byte, receivedAt time.Time) ([]Update, error)
}

// ChecksumVerifier is implemented by codecs whose venue checksums the book.
type ChecksumVerifier interface {
	VerifyChecksum(book *domain.Book, checksum int64) bool
}

// Resyncer requests a fresh snapshot for a symbol after detected data loss.
// Implemented by stream workers (resubscribe); the pipeline calls it and
// refuses deltas until the snapshot arrives.
type Resyncer interface {
	RequestResync(symbol string)
}
