package inventory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"quotefuse/internal/domain"

	"github.com/shopspring/decimal"
)

// PositionSource is the venue snapshot used for reconciliation. Satisfied by
// the execution venue's REST client.
type PositionSource interface {
	GetPosition(ctx context.Context, contract string) (domain.InventoryState, error)
}

// Tracker owns the execution-venue position. Fills move it incrementally;
// a periodic REST snapshot reconciles drift (missed reports across a
// disconnect, manual intervention on the venue). The snapshot wins whenever
// the two disagree.
type Tracker struct {
	contract    string
	source      PositionSource
	maxNotional decimal.Decimal
	interval    time.Duration

	mu     sync.RWMutex
	state  domain.InventoryState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a tracker for one contract.
func NewTracker(contract string, source PositionSource, maxNotional decimal.Decimal, resyncInterval time.Duration) *Tracker {
	if resyncInterval <= 0 {
		resyncInterval = 60 * time.Second
	}
	return &Tracker{
		contract:    contract,
		source:      source,
		maxNotional: maxNotional,
		interval:    resyncInterval,
		state:       domain.InventoryState{Symbol: contract},
	}
}

// Start runs the initial snapshot and the periodic resync loop.
func (t *Tracker) Start(ctx context.Context) error {
	ctx, t.cancel = context.WithCancel(ctx)

	if err := t.resync(ctx); err != nil {
		var cerr *domain.ConfigError
		if errors.As(err, &cerr) {
			// Credential faults are fatal at startup, never mid-run.
			return err
		}
		slog.Warn("initial position sync failed", slog.Any("error", err))
		// The loop retries; quoting is size-limited regardless.
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := t.resync(ctx); err != nil {
					slog.Warn("position resync failed", slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}

// Stop halts the resync loop.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Tracker) resync(ctx context.Context) error {
	if t.source == nil {
		return nil
	}
	snap, err := t.source.GetPosition(ctx, t.contract)
	if err != nil {
		return err
	}

	t.mu.Lock()
	drift := !t.state.Position.Equal(snap.Position)
	prev := t.state.Position
	t.state = snap
	t.mu.Unlock()

	if drift {
		slog.Warn("position drift reconciled",
			slog.String("contract", t.contract),
			slog.String("local", prev.String()),
			slog.String("venue", snap.Position.String()))
	}
	return nil
}

// OnFill folds a confirmed fill into the position.
func (t *Tracker) OnFill(report domain.ExecutionReport) {
	if !report.IsFill() {
		return
	}
	t.mu.Lock()
	t.state.ApplyFill(report.Side, report.FillPrice, report.FillSize)
	state := t.state
	t.mu.Unlock()

	slog.Info("position updated",
		slog.String("contract", t.contract),
		slog.String("side", string(report.Side)),
		slog.String("fill_size", report.FillSize.String()),
		slog.String("position", state.Position.String()))
}

// State returns a copy of the current position.
func (t *Tracker) State() domain.InventoryState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Allowable clamps an intent size so the filled position's notional stays
// within the configured maximum. Risk-reducing size never counts against the
// limit, so an intent that unwinds exposure passes whole. Zero means the
// intent must be suppressed.
func (t *Tracker) Allowable(side domain.Side, price, size decimal.Decimal) decimal.Decimal {
	if !t.maxNotional.IsPositive() || !price.IsPositive() {
		return size
	}

	t.mu.RLock()
	position := t.state.Position
	t.mu.RUnlock()

	maxQty := t.maxNotional.Div(price)
	headroom := maxQty.Sub(position)
	if side == domain.SideSell {
		headroom = maxQty.Add(position)
	}
	if headroom.IsNegative() {
		return decimal.Decimal{}
	}
	if size.LessThanOrEqual(headroom) {
		return size
	}
	return headroom
}
