package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the venue-confirmed lifecycle state of an order. An order
// only "exists" once the venue acknowledged it; local intent alone proves
// nothing.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING" // sent, not yet acknowledged
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further reports can arrive for this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// NewClientOrderID generates an id unique for the process lifetime.
func NewClientOrderID() string {
	return "qf-" + uuid.NewString()
}

// QuoteIntent is one desired resting order.
type QuoteIntent struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Size          decimal.Decimal
}

// Notional returns price * size.
func (q QuoteIntent) Notional() decimal.Decimal {
	return q.Price.Mul(q.Size)
}

// QuotePlan is one atomic quoting decision: what to cancel and what to post,
// derived from a single reference price.
type QuotePlan struct {
	ReferencePrice decimal.Decimal
	Cancels        []string // client order ids
	Intents        []QuoteIntent
	PlannedAt      time.Time
}

// Empty reports whether the plan changes nothing.
func (p QuotePlan) Empty() bool {
	return len(p.Cancels) == 0 && len(p.Intents) == 0
}

// Order is the gateway's view of a resting order.
type Order struct {
	ClientOrderID string
	VenueOrderID  string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	FilledSize    decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
}

// LeavesSize returns the unfilled remainder.
func (o *Order) LeavesSize() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// IsOpen reports whether the order can still trade.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// ExecutionReport is a venue acknowledgment of an order event, keyed by
// ClientOrderID. EventTime is the venue's own clock when present, distinct
// from the local wire time in ReceivedAt.
type ExecutionReport struct {
	ClientOrderID string
	VenueOrderID  string
	Symbol        string
	Side          Side
	Status        OrderStatus
	Price         decimal.Decimal
	FillPrice     decimal.Decimal
	FillSize      decimal.Decimal
	Reason        string
	EventTime     int64
	ReceivedAt    time.Time
}

// IsFill reports whether the report carries executed quantity.
func (r ExecutionReport) IsFill() bool {
	return r.FillSize.IsPositive()
}
