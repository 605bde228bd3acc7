package gate

import (
	"encoding/json"
	"fmt"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"

	"github.com/shopspring/decimal"
)

// wsMessage is the Gate v4 futures push envelope.
type wsMessage struct {
	TimeMs  int64           `json:"time_ms"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *wsError        `json:"error,omitempty"`
	Result  json.RawMessage `json:"result"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bookTickerResult struct {
	TimeMs   int64       `json:"t"`
	Contract string      `json:"s"`
	Bid      string      `json:"b"`
	BidSize  json.Number `json:"B"`
	Ask      string      `json:"a"`
	AskSize  json.Number `json:"A"`
	Update   uint64      `json:"u"`
}

type tickerResult struct {
	Contract    string `json:"contract"`
	Last        string `json:"last"`
	MarkPrice   string `json:"mark_price"`
	IndexPrice  string `json:"index_price"`
	FundingRate string `json:"funding_rate"`
	Volume24h   string `json:"volume_24h_settle"`
}

type tradeResult struct {
	Size         int64  `json:"size"` // negative is a sell
	ID           int64  `json:"id"`
	CreateTimeMs int64  `json:"create_time_ms"`
	Price        string `json:"price"`
	Contract     string `json:"contract"`
}

// Codec decodes Gate futures public pushes (futures.book_ticker,
// futures.trades and futures.tickers channels).
type Codec struct{}

func (Codec) Venue() domain.Venue { return domain.VenueGate }

func (Codec) Decode(payload []byte, receivedAt time.Time) ([]engine.Update, error) {
	var msg wsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("gate decode: %w", err)
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("gate stream error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	if msg.Event != "update" || len(msg.Result) == 0 {
		// subscribe acks and pongs
		return nil, nil
	}

	switch msg.Channel {
	case "futures.book_ticker":
		return decodeBookTicker(&msg, receivedAt)
	case "futures.trades":
		return decodeTrades(&msg, receivedAt)
	case "futures.tickers":
		return decodeTickers(&msg, receivedAt)
	default:
		return nil, nil
	}
}

func decodeBookTicker(msg *wsMessage, receivedAt time.Time) ([]engine.Update, error) {
	var r bookTickerResult
	if err := json.Unmarshal(msg.Result, &r); err != nil {
		return nil, fmt.Errorf("gate book_ticker: %w", err)
	}

	bid, err := decimal.NewFromString(r.Bid)
	if err != nil {
		return nil, fmt.Errorf("gate bid price %q: %w", r.Bid, err)
	}
	ask, err := decimal.NewFromString(r.Ask)
	if err != nil {
		return nil, fmt.Errorf("gate ask price %q: %w", r.Ask, err)
	}
	bidSize, err := decimal.NewFromString(r.BidSize.String())
	if err != nil {
		bidSize = decimal.Decimal{}
	}
	askSize, err := decimal.NewFromString(r.AskSize.String())
	if err != nil {
		askSize = decimal.Decimal{}
	}

	eventTime := r.TimeMs * int64(time.Millisecond)

	return []engine.Update{{
		Kind:   engine.UpdateBBO,
		Symbol: r.Contract,
		BBO: &domain.BboSample{
			Venue:      domain.VenueGate,
			Symbol:     r.Contract,
			BidPrice:   bid,
			BidSize:    bidSize,
			AskPrice:   ask,
			AskSize:    askSize,
			EventTime:  eventTime,
			ReceivedAt: receivedAt,
		},
		EventTime:  eventTime,
		ReceivedAt: receivedAt,
	}}, nil
}

func decodeTickers(msg *wsMessage, receivedAt time.Time) ([]engine.Update, error) {
	var results []tickerResult
	if err := json.Unmarshal(msg.Result, &results); err != nil {
		return nil, fmt.Errorf("gate tickers: %w", err)
	}

	eventTime := msg.TimeMs * int64(time.Millisecond)
	updates := make([]engine.Update, 0, len(results))
	for _, r := range results {
		last, err := decimal.NewFromString(r.Last)
		if err != nil {
			return nil, fmt.Errorf("gate ticker last %q: %w", r.Last, err)
		}
		updates = append(updates, engine.Update{
			Kind:   engine.UpdateTicker,
			Symbol: r.Contract,
			Ticker: &domain.TickerSample{
				Venue:       domain.VenueGate,
				Symbol:      r.Contract,
				LastPrice:   last,
				MarkPrice:   optDecimal(r.MarkPrice),
				IndexPrice:  optDecimal(r.IndexPrice),
				FundingRate: optDecimal(r.FundingRate),
				Turnover24h: optDecimal(r.Volume24h),
				EventTime:   eventTime,
				ReceivedAt:  receivedAt,
			},
			EventTime:  eventTime,
			ReceivedAt: receivedAt,
		})
	}
	return updates, nil
}

// optDecimal parses a field the venue sometimes omits; absence decodes as
// zero rather than an error.
func optDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}

func decodeTrades(msg *wsMessage, receivedAt time.Time) ([]engine.Update, error) {
	var results []tradeResult
	if err := json.Unmarshal(msg.Result, &results); err != nil {
		return nil, fmt.Errorf("gate trades: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	symbol := results[0].Contract
	trades := make([]domain.TradeSample, 0, len(results))
	for _, r := range results {
		px, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("gate trade price %q: %w", r.Price, err)
		}
		// Contract count is signed: negative means the taker sold.
		size := r.Size
		side := domain.TradeBuy
		if size < 0 {
			side = domain.TradeSell
			size = -size
		}
		trades = append(trades, domain.TradeSample{
			Venue:      domain.VenueGate,
			Symbol:     r.Contract,
			Price:      px,
			Size:       decimal.NewFromInt(size),
			Side:       side,
			EventTime:  r.CreateTimeMs * int64(time.Millisecond),
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
