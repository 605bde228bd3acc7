package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"

	"github.com/shopspring/decimal"
)

// streamMessage is the combined-stream envelope.
type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// eventHeader sniffs the event type. The EvTime field exists so the numeric
// "E" key binds to it exactly instead of matching the "e" tag
// case-insensitively and breaking the decode.
type eventHeader struct {
	Event  string `json:"e"`
	EvTime int64  `json:"E"`
}

type bookTickerEvent struct {
	Event    string `json:"e"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
	TxTime   int64  `json:"T"` // ms
	EvTime   int64  `json:"E"` // ms
}

type aggTradeEvent struct {
	Event        string `json:"e"`
	EvTime       int64  `json:"E"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

// Codec decodes Binance futures combined-stream pushes (bookTicker and
// aggTrade). Binance has no incremental book here; the BBO stream is the
// fastest top-of-book source and aggTrade covers prints.
type Codec struct{}

func (Codec) Venue() domain.Venue { return domain.VenueBinance }

func (Codec) Decode(payload []byte, receivedAt time.Time) ([]engine.Update, error) {
	data := payload

	// Combined streams wrap the event; raw streams deliver it bare.
	var env streamMessage
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Data) > 0 {
		data = env.Data
	}

	var hdr eventHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("binance decode: %w", err)
	}

	switch hdr.Event {
	case "bookTicker":
		return decodeBookTicker(data, receivedAt)
	case "aggTrade":
		return decodeAggTrade(data, receivedAt)
	default:
		return nil, nil
	}
}

func decodeBookTicker(data []byte, receivedAt time.Time) ([]engine.Update, error) {
	var ev bookTickerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("binance bookTicker: %w", err)
	}

	bid, err := decimal.NewFromString(ev.BidPrice)
	if err != nil {
		return nil, fmt.Errorf("binance bid price %q: %w", ev.BidPrice, err)
	}
	bidQty, err := decimal.NewFromString(ev.BidQty)
	if err != nil {
		return nil, fmt.Errorf("binance bid qty %q: %w", ev.BidQty, err)
	}
	ask, err := decimal.NewFromString(ev.AskPrice)
	if err != nil {
		return nil, fmt.Errorf("binance ask price %q: %w", ev.AskPrice, err)
	}
	askQty, err := decimal.NewFromString(ev.AskQty)
	if err != nil {
		return nil, fmt.Errorf("binance ask qty %q: %w", ev.AskQty, err)
	}

	eventTime := millisToNanos(ev.TxTime)
	if eventTime == 0 {
		eventTime = millisToNanos(ev.EvTime)
	}

	return []engine.Update{{
		Kind:   engine.UpdateBBO,
		Symbol: ev.Symbol,
		BBO: &domain.BboSample{
			Venue:      domain.VenueBinance,
			Symbol:     ev.Symbol,
			BidPrice:   bid,
			BidSize:    bidQty,
			AskPrice:   ask,
			AskSize:    askQty,
			EventTime:  eventTime,
			ReceivedAt: receivedAt,
		},
		EventTime:  eventTime,
		ReceivedAt: receivedAt,
	}}, nil
}

func decodeAggTrade(data []byte, receivedAt time.Time) ([]engine.Update, error) {
	var ev aggTradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("binance aggTrade: %w", err)
	}

	px, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return nil, fmt.Errorf("binance trade price %q: %w", ev.Price, err)
	}
	qty, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return nil, fmt.Errorf("binance trade qty %q: %w", ev.Quantity, err)
	}

	// Buyer-is-maker means the aggressor sold.
	side := domain.TradeBuy
	if ev.BuyerIsMaker {
		side = domain.TradeSell
	}

	return []engine.Update{{
		Kind:   engine.UpdateTrades,
		Symbol: ev.Symbol,
		Trades: []domain.TradeSample{{
			Venue:      domain.VenueBinance,
			Symbol:     ev.Symbol,
			Price:      px,
			Size:       qty,
			Side:       side,
			EventTime:  millisToNanos(ev.TradeTime),
			ReceivedAt: receivedAt,
		}},
		ReceivedAt: receivedAt,
	}}, nil
}

func millisToNanos(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return ms * int64(time.Millisecond)
}
