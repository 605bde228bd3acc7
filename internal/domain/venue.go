package domain

import "fmt"

// Venue identifies a market-data source. The set is closed: adding a venue
// means adding a constant here and handling it everywhere the compiler
// complains.
type Venue uint8

const (
	VenueUnknown Venue = iota
	VenueOKX
	VenueBybit
	VenueBinance
	VenueGate
)

// ExecutionVenue is the venue resting orders are posted on. Every venue
// contributes market data; only Gate executes.
const ExecutionVenue = VenueGate

// AllVenues lists every integrated market-data venue in a stable order.
var AllVenues = []Venue{VenueOKX, VenueBybit, VenueBinance, VenueGate}

func (v Venue) String() string {
	switch v {
	case VenueOKX:
		return "okx"
	case VenueBybit:
		return "bybit"
	case VenueBinance:
		return "binance"
	case VenueGate:
		return "gate"
	default:
		return "unknown"
	}
}

// ParseVenue maps a config string to a Venue.
func ParseVenue(s string) (Venue, error) {
	switch s {
	case "okx":
		return VenueOKX, nil
	case "bybit":
		return VenueBybit, nil
	case "binance":
		return VenueBinance, nil
	case "gate":
		return VenueGate, nil
	default:
		return VenueUnknown, fmt.Errorf("%w: %q", ErrUnknownVenue, s)
	}
}

// FeedKind distinguishes the channels a venue publishes.
type FeedKind uint8

const (
	FeedOrderBook FeedKind = iota
	FeedBBO
	FeedTrades
	FeedTicker
)

func (k FeedKind) String() string {
	switch k {
	case FeedOrderBook:
		return "orderbook"
	case FeedBBO:
		return "bbo"
	case FeedTrades:
		return "trades"
	case FeedTicker:
		return "ticker"
	default:
		return "unknown"
	}
}
