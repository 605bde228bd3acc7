package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quotefuse/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	return j
}

func TestJournalReferences(t *testing.T) {
	j := newTestJournal(t)
	j.Start(context.Background())

	j.RecordReference(domain.ReferenceEvent{
		Price:      decimal.RequireFromString("40000.5"),
		Source:     domain.VenueOKX,
		Feed:       domain.FeedOrderBook,
		Symbol:     "BTC_USDT",
		EventTime:  123,
		ReceivedAt: time.Now(),
	})
	j.Stop()

	rows, err := j.References("BTC_USDT", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "40000.5", rows[0].Price)
	assert.Equal(t, "okx", rows[0].Source)
}

func TestJournalExecutions(t *testing.T) {
	j := newTestJournal(t)
	j.Start(context.Background())

	j.RecordExecution(domain.ExecutionReport{
		ClientOrderID: "qf-1",
		VenueOrderID:  "55",
		Symbol:        "BTC_USDT",
		Side:          domain.SideSell,
		Status:        domain.OrderStatusFilled,
		FillPrice:     decimal.RequireFromString("40001"),
		FillSize:      decimal.NewFromInt(2),
		ReceivedAt:    time.Now(),
	})
	j.Stop()

	rows, err := j.Executions("BTC_USDT", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "qf-1", rows[0].ClientOrderID)
	assert.Equal(t, "FILLED", rows[0].Status)
	assert.Equal(t, "2", rows[0].FillSize)
}

func TestJournalStopFlushesBuffer(t *testing.T) {
	j := newTestJournal(t)
	j.Start(context.Background())

	for i := 0; i < 50; i++ {
		j.RecordReference(domain.ReferenceEvent{
			Price:  decimal.NewFromInt(int64(40000 + i)),
			Source: domain.VenueBybit,
			Feed:   domain.FeedBBO,
			Symbol: "BTC_USDT",
		})
	}
	j.Stop()

	rows, err := j.References("BTC_USDT", 100)
	require.NoError(t, err)
	assert.Len(t, rows, 50)
}
