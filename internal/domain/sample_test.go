package domain

import (
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTradeRing_WrapAround(t *testing.T) {
	r := NewTradeRing(4)
	for i := 1; i <= 6; i++ {
		r.Push(TradeSample{Price: decimal.NewFromInt(int64(i))})
	}

	require.Equal(t, 4, r.Len())
	last := r.Last(10)
	require.Len(t, last, 4)
	// Newest first: 6, 5, 4, 3.
	for i, want := range []int64{6, 5, 4, 3} {
		require.True(t, last[i].Price.Equal(decimal.NewFromInt(want)),
			"index "+strconv.Itoa(i))
	}
}

func TestBboSample_Mid(t *testing.T) {
	s := BboSample{
		BidPrice: decimal.RequireFromString("100"),
		AskPrice: decimal.RequireFromString("101"),
	}
	mid, ok := s.Mid()
	require.True(t, ok)
	require.True(t, mid.Equal(decimal.RequireFromString("100.5")))

	_, ok = BboSample{BidPrice: decimal.RequireFromString("100")}.Mid()
	require.False(t, ok)
}

func TestInventory_ApplyFill(t *testing.T) {
	s := &InventoryState{Symbol: "BTC-USDT"}

	s.ApplyFill(SideBuy, decimal.RequireFromString("100"), decimal.RequireFromString("2"))
	require.True(t, s.Position.Equal(decimal.RequireFromString("2")))
	require.True(t, s.AvgEntry.Equal(decimal.RequireFromString("100")))

	// Add at a higher price: entry blends by size.
	s.ApplyFill(SideBuy, decimal.RequireFromString("110"), decimal.RequireFromString("2"))
	require.True(t, s.Position.Equal(decimal.RequireFromString("4")))
	require.True(t, s.AvgEntry.Equal(decimal.RequireFromString("105")))

	// Sell down to flat clears the entry.
	s.ApplyFill(SideSell, decimal.RequireFromString("120"), decimal.RequireFromString("4"))
	require.True(t, s.Position.IsZero())
	require.True(t, s.AvgEntry.IsZero())

	// Flip through flat opens at the fill price.
	s.ApplyFill(SideBuy, decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	s.ApplyFill(SideSell, decimal.RequireFromString("90"), decimal.RequireFromString("3"))
	require.True(t, s.Position.Equal(decimal.RequireFromString("-2")))
	require.True(t, s.AvgEntry.Equal(decimal.RequireFromString("90")))
}

func TestParseVenue(t *testing.T) {
	for _, v := range AllVenues {
		got, err := ParseVenue(v.String())
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	_, err := ParseVenue("upbit")
	require.ErrorIs(t, err, ErrUnknownVenue)
}
