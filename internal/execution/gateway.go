package execution

import (
	"context"

	"quotefuse/internal/domain"
)

// Gateway is the order-entry surface of the execution venue. Submit and
// Cancel report local write success only; the authoritative lifecycle comes
// back on Reports.
type Gateway interface {
	Submit(ctx context.Context, intent domain.QuoteIntent) error
	Cancel(ctx context.Context, order domain.Order) error
	Reports() <-chan domain.ExecutionReport
}
