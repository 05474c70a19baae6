// Package orders implements the order manager (L8): submitting an
// ExecutionPermit as a limit order, polling until terminal, and reconciling
// the final fill against the permit that authorized it.
package orders

import (
	"context"

	"github.com/sawpanic/sentinel/internal/money"
)

// OrderStatus is the exchange-reported lifecycle of a submitted order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// OrderState is what the exchange reports back from GetOrder.
type OrderState struct {
	ExchangeOrderID string
	Status          OrderStatus
	FilledQty       money.Decimal
	AvgPrice        money.Price
}

// Exchange is the order-manager's only dependency on the outside world. The
// real implementation is an HTTP-backed client wrapped in a sony/gobreaker
// CircuitBreaker (out of scope for this module per the original spec's
// Non-goals); MockExchange below satisfies MOCK_MODE and every test here.
type Exchange struct {
	Place  func(ctx context.Context, symbol, side string, qty money.Decimal, limitPrice money.Price) (string, error)
	Get    func(ctx context.Context, exchangeOrderID string) (OrderState, error)
	Cancel func(ctx context.Context, exchangeOrderID string) error
}

// PlaceOrder, GetOrder and CancelOrder forward to the configured funcs so
// callers can depend on *Exchange as an interface-shaped value while a
// gobreaker-wrapped real client and a deterministic mock share this same
// struct shape — only the three funcs differ.
func (e *Exchange) PlaceOrder(ctx context.Context, symbol, side string, qty money.Decimal, limitPrice money.Price) (string, error) {
	return e.Place(ctx, symbol, side, qty, limitPrice)
}

func (e *Exchange) GetOrder(ctx context.Context, exchangeOrderID string) (OrderState, error) {
	return e.Get(ctx, exchangeOrderID)
}

func (e *Exchange) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	return e.Cancel(ctx, exchangeOrderID)
}
