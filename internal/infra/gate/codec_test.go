package gate

import (
	"context"
	"testing"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"
	"quotefuse/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBookTicker(t *testing.T) {
	payload := []byte(`{
		"time_ms": 1700000000100,
		"channel": "futures.book_ticker",
		"event": "update",
		"result": {
			"t": 1700000000095,
			"u": 2517661076,
			"s": "BTC_USDT",
			"b": "41000.5",
			"B": 1223,
			"a": "41000.6",
			"A": 930
		}
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, engine.UpdateBBO, u.Kind)
	assert.Equal(t, "BTC_USDT", u.Symbol)
	require.NotNil(t, u.BBO)
	assert.Equal(t, "41000.5", u.BBO.BidPrice.String())
	assert.Equal(t, "1223", u.BBO.BidSize.String())
	assert.Equal(t, int64(1700000000095)*int64(time.Millisecond), u.EventTime)
}

func TestDecodeTrades(t *testing.T) {
	payload := []byte(`{
		"time_ms": 1700000000200,
		"channel": "futures.trades",
		"event": "update",
		"result": [
			{"size": -108, "id": 27753479, "create_time_ms": 1700000000195, "price": "41002.4", "contract": "BTC_USDT"},
			{"size": 50, "id": 27753480, "create_time_ms": 1700000000196, "price": "41002.6", "contract": "BTC_USDT"}
		]
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Trades, 2)

	// Negative contract counts are taker sells.
	assert.Equal(t, domain.TradeSell, updates[0].Trades[0].Side)
	assert.Equal(t, "108", updates[0].Trades[0].Size.String())
	assert.Equal(t, domain.TradeBuy, updates[0].Trades[1].Side)
}

func TestDecodeTickers(t *testing.T) {
	payload := []byte(`{
		"time_ms": 1700000000300,
		"channel": "futures.tickers",
		"event": "update",
		"result": [{
			"contract": "BTC_USDT",
			"last": "41003.1",
			"mark_price": "41002.8",
			"index_price": "41002.5",
			"funding_rate": "0.0001",
			"volume_24h_settle": "52364654"
		}]
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, engine.UpdateTicker, u.Kind)
	require.NotNil(t, u.Ticker)
	assert.Equal(t, "41003.1", u.Ticker.LastPrice.String())
	assert.Equal(t, "41002.8", u.Ticker.MarkPrice.String())
	assert.Equal(t, "0.0001", u.Ticker.FundingRate.String())
	assert.Equal(t, int64(1700000000300)*int64(time.Millisecond), u.EventTime)
}

func TestDecodeTickersMissingOptionalFields(t *testing.T) {
	payload := []byte(`{
		"time_ms": 1700000000300,
		"channel": "futures.tickers",
		"event": "update",
		"result": [{"contract": "BTC_USDT", "last": "41003.1"}]
	}`)

	updates, err := Codec{}.Decode(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Ticker.MarkPrice.IsZero())
	assert.True(t, updates[0].Ticker.FundingRate.IsZero())
}

func TestDecodeIgnoresAcks(t *testing.T) {
	for _, payload := range []string{
		`{"time_ms": 1, "channel": "futures.book_ticker", "event": "subscribe", "result": {"status": "success"}}`,
		`{"time_ms": 1, "channel": "futures.pong", "event": "", "result": null}`,
	} {
		updates, err := Codec{}.Decode([]byte(payload), time.Now())
		require.NoError(t, err)
		assert.Nil(t, updates)
	}
}

func TestDecodeStreamError(t *testing.T) {
	payload := []byte(`{"time_ms": 1, "channel": "futures.trades", "event": "subscribe", "error": {"code": 2, "message": "unknown contract"}}`)
	_, err := Codec{}.Decode(payload, time.Now())
	assert.Error(t, err)
}

func TestGatewayOrderEvents(t *testing.T) {
	g := NewGateway("", "usdt", "BTC_USDT", NewSigner("k", "s"), nil, infra.DefaultBackoff())
	now := time.Now()

	g.handleMessage([]byte(`{
		"time_ms": 1700000000300,
		"channel": "futures.orders",
		"event": "update",
		"result": [{
			"id": 123,
			"contract": "BTC_USDT",
			"size": 5,
			"left": 5,
			"price": "41000.5",
			"status": "open",
			"text": "qf-abc",
			"create_time_ms": 1700000000295
		}]
	}`), now)

	select {
	case r := <-g.Reports():
		assert.Equal(t, "qf-abc", r.ClientOrderID)
		assert.Equal(t, "123", r.VenueOrderID)
		assert.Equal(t, domain.OrderStatusOpen, r.Status)
		assert.Equal(t, domain.SideBuy, r.Side)
	default:
		t.Fatal("expected a report")
	}

	g.handleMessage([]byte(`{
		"time_ms": 1700000000400,
		"channel": "futures.orders",
		"event": "update",
		"result": [{
			"id": 123,
			"contract": "BTC_USDT",
			"size": 5,
			"left": 0,
			"price": "41000.5",
			"status": "finished",
			"finish_as": "filled",
			"text": "qf-abc",
			"finish_time_ms": 1700000000395
		}]
	}`), now)

	r := <-g.Reports()
	assert.Equal(t, domain.OrderStatusFilled, r.Status)
	assert.Equal(t, int64(1700000000395)*int64(time.Millisecond), r.EventTime)
}

func TestGatewayUserTrades(t *testing.T) {
	g := NewGateway("", "usdt", "BTC_USDT", NewSigner("k", "s"), nil, infra.DefaultBackoff())

	g.handleMessage([]byte(`{
		"time_ms": 1700000000500,
		"channel": "futures.usertrades",
		"event": "update",
		"result": [{
			"id": "t-1",
			"create_time_ms": 1700000000495,
			"contract": "BTC_USDT",
			"order_id": "123",
			"size": -2,
			"price": "41000.6",
			"role": "maker",
			"text": "qf-abc"
		}]
	}`), time.Now())

	r := <-g.Reports()
	assert.True(t, r.IsFill())
	assert.Equal(t, domain.SideSell, r.Side)
	assert.Equal(t, "2", r.FillSize.String())
	assert.Equal(t, "41000.6", r.FillPrice.String())
}

func TestGatewayCanceledOrder(t *testing.T) {
	g := NewGateway("", "usdt", "BTC_USDT", NewSigner("k", "s"), nil, infra.DefaultBackoff())

	g.handleMessage([]byte(`{
		"time_ms": 1700000000600,
		"channel": "futures.orders",
		"event": "update",
		"result": [{
			"id": 124,
			"contract": "BTC_USDT",
			"size": -5,
			"left": -5,
			"price": "41001",
			"status": "finished",
			"finish_as": "cancelled",
			"text": "qf-def",
			"finish_time_ms": 1700000000595
		}]
	}`), time.Now())

	r := <-g.Reports()
	assert.Equal(t, domain.OrderStatusCanceled, r.Status)
	assert.Equal(t, domain.SideSell, r.Side)
}

func TestGatewayCloseConnectionStopsPingLoop(t *testing.T) {
	g := NewGateway("", "usdt", "BTC_USDT", NewSigner("k", "s"), nil, infra.DefaultBackoff())

	stop := make(chan struct{})
	g.mu.Lock()
	g.pingStop = stop
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.pingLoop(context.Background(), stop)
		close(done)
	}()

	g.closeConnection()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ping loop outlived its connection")
	}
}
