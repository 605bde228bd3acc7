package bybit

import (
	"testing"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBookSnapshot(t *testing.T) {
	payload := []byte(`{
		"topic": "orderbook.50.BTCUSDT",
		"type": "snapshot",
		"ts": 1700000000100,
		"data": {
			"s": "BTCUSDT",
			"b": [["41000.5", "0.5"], ["41000", "1.2"]],
			"a": [["41001", "0.8"]],
			"u": 18521288,
			"seq": 7961638724
		}
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, engine.UpdateBookSnapshot, u.Kind)
	assert.Equal(t, "BTCUSDT", u.Symbol)
	assert.Equal(t, uint64(18521288), u.Seq)
	assert.Equal(t, uint64(0), u.PrevSeq)
	assert.Equal(t, int64(1700000000100)*int64(time.Millisecond), u.EventTime)
	require.Len(t, u.Bids, 2)
	assert.Equal(t, "41000.5", u.Bids[0].Price.String())
}

func TestDecodeBookDeltaCarriesPrevUpdateID(t *testing.T) {
	payload := []byte(`{
		"topic": "orderbook.50.BTCUSDT",
		"type": "delta",
		"ts": 1700000000200,
		"data": {
			"s": "BTCUSDT",
			"b": [["41000.5", "0"]],
			"a": [],
			"u": 18521289,
			"seq": 7961638725
		}
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, engine.UpdateBookDelta, updates[0].Kind)
	assert.Equal(t, uint64(18521289), updates[0].Seq)
	assert.Equal(t, uint64(18521288), updates[0].PrevSeq)
}

func TestDecodeRestartUpdateIDIsSnapshot(t *testing.T) {
	payload := []byte(`{
		"topic": "orderbook.50.BTCUSDT",
		"type": "delta",
		"ts": 1700000000300,
		"data": {"s": "BTCUSDT", "b": [["41000", "1"]], "a": [["41001", "1"]], "u": 1, "seq": 1}
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, engine.UpdateBookSnapshot, updates[0].Kind)
}

func TestDecodeTrades(t *testing.T) {
	payload := []byte(`{
		"topic": "publicTrade.BTCUSDT",
		"type": "snapshot",
		"ts": 1700000000400,
		"data": [
			{"T": 1700000000395, "s": "BTCUSDT", "S": "Sell", "v": "0.01", "p": "41002.1", "i": "t1"},
			{"T": 1700000000396, "s": "BTCUSDT", "S": "Buy", "v": "0.02", "p": "41002.5", "i": "t2"}
		]
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Trades, 2)
	assert.Equal(t, domain.TradeSell, updates[0].Trades[0].Side)
	assert.Equal(t, "41002.1", updates[0].Trades[0].Price.String())
	assert.Equal(t, int64(1700000000395)*int64(time.Millisecond), updates[0].Trades[0].EventTime)
}

func TestDecodeIgnoresOpResponses(t *testing.T) {
	for _, payload := range []string{
		`{"success": true, "ret_msg": "", "op": "subscribe"}`,
		`{"success": true, "ret_msg": "pong", "op": "ping"}`,
	} {
		updates, err := Codec{}.Decode([]byte(payload), time.Now())
		require.NoError(t, err)
		assert.Nil(t, updates)
	}
}

func TestDecodeSubscribeFailure(t *testing.T) {
	payload := []byte(`{"success": false, "ret_msg": "Invalid topic", "op": "subscribe"}`)
	_, err := Codec{}.Decode(payload, time.Now())
	assert.Error(t, err)
}
