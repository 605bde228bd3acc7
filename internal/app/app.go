package app

import (
	"context"
	"log/slog"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/engine"
	"quotefuse/internal/execution"
	"quotefuse/internal/infra"
	"quotefuse/internal/infra/binance"
	"quotefuse/internal/infra/bybit"
	"quotefuse/internal/infra/gate"
	"quotefuse/internal/infra/okx"
	"quotefuse/internal/inventory"
	"quotefuse/internal/strategy"

	"golang.org/x/sync/errgroup"
)

const frameBuffer = 2048

// App wires feeds, fusion, strategy and execution together and runs them
// until the context is cancelled.
type App struct {
	cfg     *infra.Config
	journal journalSink

	publisher *engine.Publisher
	pipelines []*engine.Pipeline
	workers   []worker

	gateway   *gate.Gateway
	tracker   *execution.Tracker
	inventory *inventory.Tracker
	maker     *strategy.Maker
	clock     *strategy.QuoteClock
}

type worker interface {
	Connect(ctx context.Context) error
	Disconnect()
}

type journalSink interface {
	Start(ctx context.Context)
	Stop()
	RecordReference(domain.ReferenceEvent)
	RecordExecution(domain.ExecutionReport)
	RecordInventory(domain.InventoryState)
}

// noopJournal is used when journaling is disabled.
type noopJournal struct{}

func (noopJournal) Start(context.Context)                  {}
func (noopJournal) Stop()                                  {}
func (noopJournal) RecordReference(domain.ReferenceEvent)  {}
func (noopJournal) RecordExecution(domain.ExecutionReport) {}
func (noopJournal) RecordInventory(domain.InventoryState)  {}

// New builds the full component graph from a bootstrap.
func New(b *Bootstrap) *App {
	cfg := b.Config

	a := &App{cfg: cfg, journal: noopJournal{}}
	if b.Journal != nil {
		a.journal = b.Journal
	}

	demean := engine.NewDemeanTracker(cfg.Fusion.DemeanAlpha, cfg.DemeanHalfLife())
	a.publisher = engine.NewPublisher(cfg.Quoting.Symbol, engine.PooledMean{}, demean, cfg.Freshness())

	backoff := infra.NewBackoff(cfg.BackoffBounds())

	if vc := cfg.Venues.OKX; vc.Enabled {
		frames := make(chan domain.Frame, frameBuffer)
		w := okx.NewWorker(vc.WSURL, vc.Symbols, frames, backoff)
		a.workers = append(a.workers, w)
		a.pipelines = append(a.pipelines, engine.NewPipeline(okx.Codec{}, frames, a.publisher, w))
	}
	if vc := cfg.Venues.Bybit; vc.Enabled {
		frames := make(chan domain.Frame, frameBuffer)
		w := bybit.NewWorker(vc.WSURL, vc.Symbols, frames, backoff)
		a.workers = append(a.workers, w)
		a.pipelines = append(a.pipelines, engine.NewPipeline(bybit.Codec{}, frames, a.publisher, w))
	}
	if vc := cfg.Venues.Binance; vc.Enabled {
		frames := make(chan domain.Frame, frameBuffer)
		w := binance.NewWorker(vc.WSURL, vc.Symbols, frames, backoff)
		a.workers = append(a.workers, w)
		a.pipelines = append(a.pipelines, engine.NewPipeline(binance.Codec{}, frames, a.publisher, w))
	}
	if vc := cfg.Venues.Gate; vc.Enabled {
		frames := make(chan domain.Frame, frameBuffer)
		w := gate.NewWorker(vc.WSURL, vc.Symbols, frames, backoff)
		a.workers = append(a.workers, w)
		a.pipelines = append(a.pipelines, engine.NewPipeline(gate.Codec{}, frames, a.publisher, w))
	}

	a.clock = strategy.NewQuoteClock(cfg.CooldownFloor())

	if cfg.ExecutionEnabled() {
		signer := gate.NewSigner(cfg.Execution.AccessKey, cfg.Execution.SecretKey)
		rest := gate.NewRestClient(cfg.Execution.RestURL, cfg.Execution.Settle, signer)

		a.tracker = execution.NewTracker()
		a.inventory = inventory.NewTracker(cfg.Quoting.Symbol, rest,
			cfg.Quoting.MaxPositionNotional, cfg.ResyncInterval())

		a.gateway = gate.NewGateway(cfg.Execution.WSURL, cfg.Execution.Settle,
			cfg.Quoting.Symbol, signer, rest, backoff)
		a.gateway.Known = a.tracker.Known

		a.maker = strategy.NewMaker(cfg.Quoting.Symbol,
			cfg.Quoting.SpreadBps, cfg.Quoting.QuoteSize, cfg.Quoting.PriceTolerance,
			a.clock, a.inventory)
	}

	return a
}

// Run starts every component and blocks until the context is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.journal.Start(ctx)
	defer a.journal.Stop()

	references := a.publisher.Subscribe(512)

	for _, p := range a.pipelines {
		p := p
		g.Go(func() error {
			p.Run(ctx)
			return nil
		})
	}
	for _, w := range a.workers {
		if err := w.Connect(ctx); err != nil {
			return err
		}
		defer w.Disconnect()
	}

	if a.gateway != nil {
		if err := a.inventory.Start(ctx); err != nil {
			return err
		}
		defer a.inventory.Stop()

		if err := a.gateway.Connect(ctx); err != nil {
			return err
		}
		defer a.gateway.Disconnect()

		g.Go(func() error {
			a.reportLoop(ctx)
			return nil
		})
		g.Go(func() error {
			a.quoteLoop(ctx, references)
			return nil
		})
	} else {
		g.Go(func() error {
			a.observeLoop(ctx, references)
			return nil
		})
	}

	slog.Info("quotefuse running",
		slog.Int("venues", len(a.pipelines)),
		slog.Bool("execution", a.gateway != nil))

	return g.Wait()
}

// observeLoop journals references in market-data-only runs.
func (a *App) observeLoop(ctx context.Context, references <-chan domain.ReferenceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-references:
			a.journal.RecordReference(ev)
		}
	}
}

// quoteLoop drives the strategy off the reference stream.
func (a *App) quoteLoop(ctx context.Context, references <-chan domain.ReferenceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-references:
			a.journal.RecordReference(ev)
			plan := a.maker.OnReference(ev, time.Now())
			if plan.Empty() {
				continue
			}
			a.executePlan(ctx, plan)
		}
	}
}

func (a *App) executePlan(ctx context.Context, plan domain.QuotePlan) {
	for _, id := range plan.Cancels {
		order, ok := a.tracker.Get(id)
		if !ok {
			continue
		}
		if err := a.gateway.Cancel(ctx, order); err != nil {
			slog.Warn("cancel failed",
				slog.String("client_order_id", id),
				slog.Any("error", err))
			a.maker.OnCancelFailed(id)
		}
	}
	for _, intent := range plan.Intents {
		if _, err := a.tracker.RegisterIntent(intent); err != nil {
			slog.Error("intent registration failed",
				slog.String("client_order_id", intent.ClientOrderID),
				slog.Any("error", err))
			continue
		}
		if err := a.gateway.Submit(ctx, intent); err != nil {
			slog.Warn("submit failed",
				slog.String("client_order_id", intent.ClientOrderID),
				slog.Any("error", err))
			// The venue never saw the order; close it out locally.
			a.applyReport(domain.ExecutionReport{
				ClientOrderID: intent.ClientOrderID,
				Status:        domain.OrderStatusRejected,
				Reason:        err.Error(),
				ReceivedAt:    time.Now(),
			})
		}
	}
}

// reportLoop folds venue execution reports into the tracker, the strategy's
// resting view and the position.
func (a *App) reportLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case report := <-a.gateway.Reports():
			a.applyReport(report)
		}
	}
}

func (a *App) applyReport(report domain.ExecutionReport) {
	a.journal.RecordExecution(report)

	order, err := a.tracker.Apply(report)
	if err != nil {
		slog.Warn("report for unknown order",
			slog.String("client_order_id", report.ClientOrderID),
			slog.String("status", string(report.Status)))
		return
	}
	a.maker.OnOrder(order)

	if report.IsFill() {
		a.inventory.OnFill(report)
		a.journal.RecordInventory(a.inventory.State())
	}
}
