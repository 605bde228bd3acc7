package okx

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"

	"github.com/shopspring/decimal"
)

const checksumDepth = 25

// Codec decodes OKX public push frames (books and trades channels).
type Codec struct{}

func (Codec) Venue() domain.Venue { return domain.VenueOKX }

func (Codec) Decode(payload []byte, receivedAt time.Time) ([]engine.Update, error) {
	var msg wsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("okx decode: %w", err)
	}
	if msg.Event == "error" {
		return nil, fmt.Errorf("okx stream error %s: %s", msg.Code, msg.Msg)
	}
	if msg.Event != "" || len(msg.Data) == 0 {
		// subscribe ack or housekeeping frame
		return nil, nil
	}

	switch msg.Arg.Channel {
	case "books", "books5":
		return decodeBooks(&msg, receivedAt)
	case "trades":
		return decodeTrades(&msg, receivedAt)
	default:
		return nil, nil
	}
}

func decodeBooks(msg *wsMessage, receivedAt time.Time) ([]engine.Update, error) {
	kind := engine.UpdateBookDelta
	if msg.Action == "snapshot" || msg.Arg.Channel == "books5" {
		kind = engine.UpdateBookSnapshot
	}

	updates := make([]engine.Update, 0, len(msg.Data))
	for _, d := range msg.Data {
		bids, err := parseLevels(d.Bids)
		if err != nil {
			return nil, err
		}
		asks, err := parseLevels(d.Asks)
		if err != nil {
			return nil, err
		}
		sum := int64(d.Checksum)
		updates = append(updates, engine.Update{
			Kind:       kind,
			Symbol:     msg.Arg.InstID,
			Bids:       bids,
			Asks:       asks,
			Seq:        clampSeq(d.SeqID),
			PrevSeq:    clampSeq(d.PrevSeqID),
			Checksum:   &sum,
			EventTime:  millisToNanos(d.Ts),
			ReceivedAt: receivedAt,
		})
	}
	return updates, nil
}

// clampSeq maps the wire's "no sequence" marker (-1) to zero.
func clampSeq(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func decodeTrades(msg *wsMessage, receivedAt time.Time) ([]engine.Update, error) {
	trades := make([]domain.TradeSample, 0, len(msg.Data))
	for _, d := range msg.Data {
		px, err := decimal.NewFromString(d.Px)
		if err != nil {
			return nil, fmt.Errorf("okx trade price %q: %w", d.Px, err)
		}
		sz, err := decimal.NewFromString(d.Sz)
		if err != nil {
			return nil, fmt.Errorf("okx trade size %q: %w", d.Sz, err)
		}
		side := domain.TradeBuy
		if d.Side == "sell" {
			side = domain.TradeSell
		}
		trades = append(trades, domain.TradeSample{
			Venue:      domain.VenueOKX,
			Symbol:     msg.Arg.InstID,
			Price:      px,
			Size:       sz,
			Side:       side,
			EventTime:  millisToNanos(d.Ts),
			ReceivedAt: receivedAt,
		})
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return []engine.Update{{
		Kind:       engine.UpdateTrades,
		Symbol:     msg.Arg.InstID,
		Trades:     trades,
		ReceivedAt: receivedAt,
	}}, nil
}

// VerifyChecksum recomputes the OKX book checksum: up to 25 bid and ask
// levels interleaved as price:size fields joined by colons, CRC32 (IEEE),
// truncated to a signed 32-bit value.
func (Codec) VerifyChecksum(book *domain.Book, checksum int64) bool {
	bids, asks := book.TopLevels(checksumDepth)

	fields := make([]string, 0, 4*checksumDepth)
	n := len(bids)
	if len(asks) > n {
		n = len(asks)
	}
	for i := 0; i < n; i++ {
		if i < len(bids) {
			fields = append(fields, bids[i].Price.String(), bids[i].Size.String())
		}
		if i < len(asks) {
			fields = append(fields, asks[i].Price.String(), asks[i].Size.String())
		}
	}

	crc := crc32.ChecksumIEEE([]byte(strings.Join(fields, ":")))
	return int64(int32(crc)) == int64(int32(checksum))
}

func parseLevels(raw [][]string) ([]domain.Level, error) {
	levels := make([]domain.Level, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		px, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, fmt.Errorf("okx level price %q: %w", r[0], err)
		}
		sz, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, fmt.Errorf("okx level size %q: %w", r[1], err)
		}
		levels = append(levels, domain.Level{Price: px, Size: sz})
	}
	return levels, nil
}

func millisToNanos(ts string) int64 {
	if ts == "" {
		return 0
	}
	ms, err := decimal.NewFromString(ts)
	if err != nil {
		return 0
	}
	return ms.IntPart() * int64(time.Millisecond)
}
