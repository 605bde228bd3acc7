package binance

import (
	"testing"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBookTickerCombinedStream(t *testing.T) {
	payload := []byte(`{
		"stream": "btcusdt@bookTicker",
		"data": {
			"e": "bookTicker",
			"u": 400900217,
			"s": "BTCUSDT",
			"b": "41000.50",
			"B": "31.21",
			"a": "41000.60",
			"A": "40.66",
			"T": 1700000000123,
			"E": 1700000000125
		}
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, engine.UpdateBBO, u.Kind)
	assert.Equal(t, "BTCUSDT", u.Symbol)
	require.NotNil(t, u.BBO)
	assert.Equal(t, "41000.5", u.BBO.BidPrice.String())
	assert.Equal(t, "41000.6", u.BBO.AskPrice.String())
	// Transaction time wins over event time.
	assert.Equal(t, int64(1700000000123)*int64(time.Millisecond), u.EventTime)

	mid, ok := u.BBO.Mid()
	require.True(t, ok)
	assert.Equal(t, "41000.55", mid.String())
}

func TestDecodeEventTimeKeyBeforeEventType(t *testing.T) {
	// The numeric "E" key arriving before "e" must not clobber the event
	// type during the header sniff.
	payload := []byte(`{"E":1700000000125,"e":"bookTicker","s":"BTCUSDT","b":"41000","B":"1","a":"41001","A":"1","T":1700000000123}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, engine.UpdateBBO, updates[0].Kind)
}

func TestDecodeBookTickerRawStream(t *testing.T) {
	payload := []byte(`{"e":"bookTicker","s":"BTCUSDT","b":"41000","B":"1","a":"41001","A":"1","T":1700000000123,"E":1700000000125}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, engine.UpdateBBO, updates[0].Kind)
}

func TestDecodeAggTrade(t *testing.T) {
	payload := []byte(`{
		"stream": "btcusdt@aggTrade",
		"data": {
			"e": "aggTrade",
			"E": 1700000000200,
			"s": "BTCUSDT",
			"a": 5933014,
			"p": "41002.10",
			"q": "0.015",
			"T": 1700000000198,
			"m": true
		}
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Trades, 1)

	tr := updates[0].Trades[0]
	assert.Equal(t, "41002.1", tr.Price.String())
	// buyer-is-maker means the taker sold
	assert.Equal(t, domain.TradeSell, tr.Side)
	assert.Equal(t, int64(1700000000198)*int64(time.Millisecond), tr.EventTime)
}

func TestDecodeIgnoresUnknownEvents(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@markPrice","data":{"e":"markPriceUpdate","s":"BTCUSDT","p":"41000"}}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	assert.Nil(t, updates)
}
