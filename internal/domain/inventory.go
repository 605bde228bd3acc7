package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryState is the reconciled position for the execution venue. Owned
// exclusively by the inventory tracker; mutated only by confirmed fills and
// periodic REST reconciliation, never by unacknowledged intents.
type InventoryState struct {
	Symbol string
	// Position is signed base size: positive long, negative short.
	Position decimal.Decimal
	// AvgEntry is the volume-weighted average entry price of the open
	// position. Zero when flat.
	AvgEntry decimal.Decimal
	// Notional is |Position| * last known mark or fill price.
	Notional decimal.Decimal
	// SyncedAt is when the state was last confirmed against the venue REST
	// snapshot.
	SyncedAt time.Time
}

// ApplyFill folds a confirmed fill into the position.
func (s *InventoryState) ApplyFill(side Side, price, size decimal.Decimal) {
	signed := size
	if side == SideSell {
		signed = size.Neg()
	}
	next := s.Position.Add(signed)

	switch {
	case s.Position.IsZero():
		s.AvgEntry = price
	case s.Position.Sign() == signed.Sign():
		// Adding to the position: blend entry price by size.
		total := s.Position.Abs().Add(size)
		s.AvgEntry = s.AvgEntry.Mul(s.Position.Abs()).Add(price.Mul(size)).Div(total)
	case next.IsZero():
		s.AvgEntry = decimal.Decimal{}
	case next.Sign() != s.Position.Sign():
		// Flipped through flat: remainder opened at the fill price.
		s.AvgEntry = price
	}
	s.Position = next
	s.Notional = s.Position.Abs().Mul(price)
}
