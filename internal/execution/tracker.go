package execution

import (
	"log/slog"
	"sync"

	"quotefuse/internal/domain"
)

// Tracker holds the local view of every order in flight. Orders start
// PENDING when an intent is registered and only become real when the venue
// acknowledges them; venue reports always win over local state. Terminal
// orders are dropped once applied so the map only ever holds live orders.
type Tracker struct {
	mu     sync.Mutex
	orders map[string]*domain.Order // by client order id
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{orders: make(map[string]*domain.Order)}
}

// RegisterIntent records a submitted intent as a PENDING order. Registering
// an id twice is a programming error surfaced as ErrOrderRejected.
func (t *Tracker) RegisterIntent(intent domain.QuoteIntent) (domain.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.orders[intent.ClientOrderID]; ok {
		return domain.Order{}, domain.ErrOrderRejected
	}
	o := &domain.Order{
		ClientOrderID: intent.ClientOrderID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Price:         intent.Price,
		Size:          intent.Size,
		Status:        domain.OrderStatusPending,
	}
	t.orders[intent.ClientOrderID] = o
	return *o, nil
}

// Apply folds a venue report into the tracked order and returns the updated
// view. Unknown ids return ErrUnknownOrder; reconciliation decides what to
// do with those, the tracker never invents an order from a report.
func (t *Tracker) Apply(report domain.ExecutionReport) (domain.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[report.ClientOrderID]
	if !ok {
		return domain.Order{}, domain.ErrUnknownOrder
	}

	if report.VenueOrderID != "" {
		o.VenueOrderID = report.VenueOrderID
	}
	if report.Price.IsPositive() {
		o.Price = report.Price
	}
	if report.IsFill() {
		o.FilledSize = o.FilledSize.Add(report.FillSize)
		if o.FilledSize.GreaterThan(o.Size) {
			o.FilledSize = o.Size
		}
	}

	switch report.Status {
	case domain.OrderStatusOpen, domain.OrderStatusPartiallyFilled:
		// A fill report can outrun the terminal order event; never regress
		// a terminal state.
		if !o.Status.IsTerminal() {
			o.Status = report.Status
			if o.FilledSize.IsPositive() {
				o.Status = domain.OrderStatusPartiallyFilled
			}
		}
	case domain.OrderStatusFilled, domain.OrderStatusCanceled, domain.OrderStatusRejected:
		o.Status = report.Status
	}

	updated := *o
	if o.Status.IsTerminal() {
		delete(t.orders, report.ClientOrderID)
		slog.Debug("order closed",
			slog.String("client_order_id", o.ClientOrderID),
			slog.String("status", string(o.Status)))
	}
	return updated, nil
}

// Get returns the tracked order for a client order id.
func (t *Tracker) Get(clientOrderID string) (domain.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[clientOrderID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// Known reports whether a client order id is tracked. Wired into gateway
// reconciliation to identify orphans.
func (t *Tracker) Known(clientOrderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.orders[clientOrderID]
	return ok
}

// Open returns the orders the venue has acknowledged and not yet closed.
func (t *Tracker) Open() []domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Order, 0, len(t.orders))
	for _, o := range t.orders {
		if o.IsOpen() {
			out = append(out, *o)
		}
	}
	return out
}

// Pending returns orders submitted but not yet acknowledged.
func (t *Tracker) Pending() []domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Order, 0)
	for _, o := range t.orders {
		if o.Status == domain.OrderStatusPending {
			out = append(out, *o)
		}
	}
	return out
}
