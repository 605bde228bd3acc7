package bybit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"

	"github.com/shopspring/decimal"
)

// wsMessage is the Bybit v5 public push envelope.
type wsMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"` // ms
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success,omitempty"`
	RetMsg  string          `json:"ret_msg,omitempty"`
}

type bookData struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	Update uint64     `json:"u"`
	Seq    uint64     `json:"seq"`
}

type tradeData struct {
	Ts     int64  `json:"T"` // ms
	Symbol string `json:"s"`
	Side   string `json:"S"`
	Size   string `json:"v"`
	Price  string `json:"p"`
}

// Codec decodes Bybit v5 linear public pushes (orderbook.50 and
// publicTrade topics).
type Codec struct{}

func (Codec) Venue() domain.Venue { return domain.VenueBybit }

func (Codec) Decode(payload []byte, receivedAt time.Time) ([]engine.Update, error) {
	var msg wsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("bybit decode: %w", err)
	}
	if msg.Success != nil && !*msg.Success {
		return nil, fmt.Errorf("bybit stream error: %s", msg.RetMsg)
	}
	if msg.Topic == "" {
		// op responses: pong, subscribe ack
		return nil, nil
	}

	switch {
	case strings.HasPrefix(msg.Topic, "orderbook."):
		return decodeBook(&msg, receivedAt)
	case strings.HasPrefix(msg.Topic, "publicTrade."):
		return decodeTrades(&msg, receivedAt)
	default:
		return nil, nil
	}
}

func decodeBook(msg *wsMessage, receivedAt time.Time) ([]engine.Update, error) {
	var d bookData
	if err := json.Unmarshal(msg.Data, &d); err != nil {
		return nil, fmt.Errorf("bybit book data: %w", err)
	}

	bids, err := parseLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return nil, err
	}

	// The update id u is contiguous per symbol; u == 1 signals a service
	// restart and always carries a full snapshot.
	kind := engine.UpdateBookDelta
	prev := uint64(0)
	if msg.Type == "snapshot" || d.Update == 1 {
		kind = engine.UpdateBookSnapshot
	} else if d.Update > 0 {
		prev = d.Update - 1
	}

	return []engine.Update{{
		Kind:       kind,
		Symbol:     d.Symbol,
		Bids:       bids,
		Asks:       asks,
		Seq:        d.Update,
		PrevSeq:    prev,
		EventTime:  msg.Ts * int64(time.Millisecond),
		ReceivedAt: receivedAt,
	}}, nil
}

func decodeTrades(msg *wsMessage, receivedAt time.Time) ([]engine.Update, error) {
	var data []tradeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil, fmt.Errorf("bybit trade data: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	symbol := data[0].Symbol
	trades := make([]domain.TradeSample, 0, len(data))
	for _, d := range data {
		px, err := decimal.NewFromString(d.Price)
		if err != nil {
			return nil, fmt.Errorf("bybit trade price %q: %w", d.Price, err)
		}
		sz, err := decimal.NewFromString(d.Size)
		if err != nil {
			return nil, fmt.Errorf("bybit trade size %q: %w", d.Size, err)
		}
		side := domain.TradeBuy
		if d.Side == "Sell" {
			side = domain.TradeSell
		}
		trades = append(trades, domain.TradeSample{
			Venue:      domain.VenueBybit,
			Symbol:     d.Symbol,
			Price:      px,
			Size:       sz,
			Side:       side,
			EventTime:  d.Ts * int64(time.Millisecond),
			ReceivedAt: receivedAt,
		})
	}
	return []engine.Update{{
		Kind:       engine.UpdateTrades,
		Symbol:     symbol,
		Trades:     trades,
		ReceivedAt: receivedAt,
	}}, nil
}

func parseLevels(raw [][]string) ([]domain.Level, error) {
	levels := make([]domain.Level, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		px, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, fmt.Errorf("bybit level price %q: %w", r[0], err)
		}
		sz, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, fmt.Errorf("bybit level size %q: %w", r[1], err)
		}
		levels = append(levels, domain.Level{Price: px, Size: sz})
	}
	return levels, nil
}
