package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quotefuse/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReferenceRow is one emitted reference price.
type ReferenceRow struct {
	ID         uint   `gorm:"primaryKey"`
	Symbol     string `gorm:"index"`
	Price      string
	Source     string
	Feed       string
	EventTime  int64
	ReceivedAt time.Time
	CreatedAt  time.Time
}

// ExecutionRow is one venue execution report.
type ExecutionRow struct {
	ID            uint   `gorm:"primaryKey"`
	ClientOrderID string `gorm:"index"`
	VenueOrderID  string
	Symbol        string
	Side          string
	Status        string
	Price         string
	FillPrice     string
	FillSize      string
	Reason        string
	EventTime     int64
	ReceivedAt    time.Time
	CreatedAt     time.Time
}

// InventoryRow is one reconciled position snapshot.
type InventoryRow struct {
	ID        uint   `gorm:"primaryKey"`
	Symbol    string `gorm:"index"`
	Position  string
	AvgEntry  string
	Notional  string
	SyncedAt  time.Time
	CreatedAt time.Time
}

// Journal persists references, executions and position snapshots to SQLite
// for post-session analysis. Writes go through a buffered channel and a
// single writer goroutine; when the buffer is full the row is dropped, the
// journal never applies backpressure to the trading path.
type Journal struct {
	db     *gorm.DB
	rows   chan interface{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJournal opens (and migrates) the journal database.
func NewJournal(path string) (*Journal, error) {
	if path == "" {
		path = filepath.Join("data", "quotefuse.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.AutoMigrate(&ReferenceRow{}, &ExecutionRow{}, &InventoryRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{
		db:   db,
		rows: make(chan interface{}, 4096),
	}, nil
}

// Start launches the writer goroutine.
func (j *Journal) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			select {
			case <-ctx.Done():
				j.drain()
				return
			case row := <-j.rows:
				j.write(row)
			}
		}
	}()
}

// Stop flushes pending rows and stops the writer.
func (j *Journal) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Journal) drain() {
	for {
		select {
		case row := <-j.rows:
			j.write(row)
		default:
			return
		}
	}
}

func (j *Journal) write(row interface{}) {
	if err := j.db.Create(row).Error; err != nil {
		slog.Warn("journal write failed", slog.Any("error", err))
	}
}

func (j *Journal) enqueue(row interface{}) {
	select {
	case j.rows <- row:
	default:
		// Full buffer: the journal is best-effort.
	}
}

// RecordReference journals an emitted reference event.
func (j *Journal) RecordReference(ev domain.ReferenceEvent) {
	j.enqueue(&ReferenceRow{
		Symbol:     ev.Symbol,
		Price:      ev.Price.String(),
		Source:     ev.Source.String(),
		Feed:       ev.Feed.String(),
		EventTime:  ev.EventTime,
		ReceivedAt: ev.ReceivedAt,
	})
}

// RecordExecution journals a venue execution report.
func (j *Journal) RecordExecution(r domain.ExecutionReport) {
	j.enqueue(&ExecutionRow{
		ClientOrderID: r.ClientOrderID,
		VenueOrderID:  r.VenueOrderID,
		Symbol:        r.Symbol,
		Side:          string(r.Side),
		Status:        string(r.Status),
		Price:         r.Price.String(),
		FillPrice:     r.FillPrice.String(),
		FillSize:      r.FillSize.String(),
		Reason:        r.Reason,
		EventTime:     r.EventTime,
		ReceivedAt:    r.ReceivedAt,
	})
}

// RecordInventory journals a position snapshot.
func (j *Journal) RecordInventory(st domain.InventoryState) {
	j.enqueue(&InventoryRow{
		Symbol:   st.Symbol,
		Position: st.Position.String(),
		AvgEntry: st.AvgEntry.String(),
		Notional: st.Notional.String(),
		SyncedAt: st.SyncedAt,
	})
}

// References returns the most recent journaled references, newest first.
func (j *Journal) References(symbol string, limit int) ([]ReferenceRow, error) {
	var rows []ReferenceRow
	err := j.db.Where("symbol = ?", symbol).Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Executions returns the most recent journaled execution reports.
func (j *Journal) Executions(symbol string, limit int) ([]ExecutionRow, error) {
	var rows []ExecutionRow
	err := j.db.Where("symbol = ?", symbol).Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}
