package strategy

import (
	"log/slog"
	"sync"
	"time"

	"quotefuse/internal/domain"

	"github.com/shopspring/decimal"
)

// PositionGuard clamps an intent size against position limits. The returned
// size may equal the requested one, be smaller, or be zero to suppress the
// intent entirely.
type PositionGuard interface {
	Allowable(side domain.Side, price, size decimal.Decimal) decimal.Decimal
}

// Quoter turns reference prices into quote plans.
type Quoter interface {
	OnReference(ev domain.ReferenceEvent, at time.Time) domain.QuotePlan
	OnOrder(order domain.Order)
}

type restingSide struct {
	order      domain.Order
	pending    bool // submitted, not yet acknowledged
	cancelSent bool
}

// Maker keeps one bid and one ask straddling the fused reference. On every
// reference it reprices: a resting order within tolerance of its target
// stays put, one outside gets cancelled, and a missing side is reposted when
// the quote clock allows. A cancel and its replacement never share a plan;
// the repost happens on a later reference once the cooldown elapses, so a
// burst of reference moves can never turn into a self-race at the venue.
type Maker struct {
	symbol    string
	spreadBps decimal.Decimal
	size      decimal.Decimal
	tolerance decimal.Decimal
	clock     *QuoteClock
	guard     PositionGuard

	mu      sync.Mutex
	resting map[domain.Side]*restingSide
}

// NewMaker creates a maker strategy for one symbol.
func NewMaker(symbol string, spreadBps, size, tolerance decimal.Decimal, clock *QuoteClock, guard PositionGuard) *Maker {
	if tolerance.IsNegative() || tolerance.IsZero() {
		tolerance = decimal.RequireFromString("0.01")
	}
	return &Maker{
		symbol:    symbol,
		spreadBps: spreadBps,
		size:      size,
		tolerance: tolerance,
		clock:     clock,
		guard:     guard,
		resting:   make(map[domain.Side]*restingSide),
	}
}

// OnReference produces the plan for one reference event. The returned plan
// is atomic: everything in it derives from this single reference price.
func (m *Maker) OnReference(ev domain.ReferenceEvent, at time.Time) domain.QuotePlan {
	if ev.Symbol != m.symbol || !ev.Price.IsPositive() {
		return domain.QuotePlan{}
	}

	half := ev.Price.Mul(m.spreadBps).Div(decimal.NewFromInt(20000))
	targetBid := ev.Price.Sub(half)
	targetAsk := ev.Price.Add(half)

	m.mu.Lock()
	defer m.mu.Unlock()

	plan := domain.QuotePlan{ReferencePrice: ev.Price, PlannedAt: at}
	m.planSide(&plan, domain.SideBuy, targetBid, at)
	m.planSide(&plan, domain.SideSell, targetAsk, at)

	if len(plan.Cancels) > 0 {
		m.clock.OnCancelSent(at)
	}
	return plan
}

func (m *Maker) planSide(plan *domain.QuotePlan, side domain.Side, target decimal.Decimal, at time.Time) {
	rs, ok := m.resting[side]
	if ok {
		if rs.pending || rs.cancelSent {
			// An ack or cancel confirmation is in flight; acting again now
			// would race it.
			return
		}
		if rs.order.Price.Sub(target).Abs().LessThanOrEqual(m.tolerance) {
			return
		}
		plan.Cancels = append(plan.Cancels, rs.order.ClientOrderID)
		rs.cancelSent = true
		return
	}

	if !m.clock.CanQuote(at) {
		return
	}
	size := m.size
	if m.guard != nil {
		size = m.guard.Allowable(side, target, size)
		if !size.IsPositive() {
			slog.Debug("quote suppressed by position limit",
				slog.String("side", string(side)),
				slog.String("price", target.String()))
			return
		}
		if size.LessThan(m.size) {
			slog.Debug("quote size reduced by position limit",
				slog.String("side", string(side)),
				slog.String("requested", m.size.String()),
				slog.String("allowed", size.String()))
		}
	}

	intent := domain.QuoteIntent{
		ClientOrderID: domain.NewClientOrderID(),
		Symbol:        m.symbol,
		Side:          side,
		Price:         target,
		Size:          size,
	}
	plan.Intents = append(plan.Intents, intent)
	m.resting[side] = &restingSide{
		order: domain.Order{
			ClientOrderID: intent.ClientOrderID,
			Symbol:        intent.Symbol,
			Side:          side,
			Price:         intent.Price,
			Size:          intent.Size,
			Status:        domain.OrderStatusPending,
		},
		pending: true,
	}
}

// OnOrder folds a tracked order update into the resting view. Venue state is
// authoritative; a rejection or cancel frees the side for the next plan.
func (m *Maker) OnOrder(order domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.resting[order.Side]
	if !ok || rs.order.ClientOrderID != order.ClientOrderID {
		return
	}

	if order.Status.IsTerminal() {
		delete(m.resting, order.Side)
		return
	}
	rs.order = order
	rs.pending = order.Status == domain.OrderStatusPending
}

// OnCancelFailed reopens a side whose cancel never reached the venue. No
// report will ever arrive for a send that failed locally, so the in-flight
// flag must be cleared here or the side freezes while the stale order rests.
func (m *Maker) OnCancelFailed(clientOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rs := range m.resting {
		if rs.order.ClientOrderID == clientOrderID {
			rs.cancelSent = false
			return
		}
	}
}

// Resting returns the current resting view, for logging and shutdown.
func (m *Maker) Resting() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.resting))
	for _, rs := range m.resting {
		out = append(out, rs.order)
	}
	return out
}
