package orders

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/sentinel/internal/money"
)

// WrapWithBreaker wraps a real exchange client's three calls in a
// sony/gobreaker CircuitBreaker, tripping after 5 consecutive failures and
// probing again after 60s — this is the exchange-call circuit breaker
// distinguished in SPEC_FULL.md §4.3a from the headless trading breaker in
// internal/domain/breaker, which derives its state from closed trades
// instead of call failures.
func WrapWithBreaker(inner *Exchange, name string) *Exchange {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	cb := gobreaker.NewCircuitBreaker[any](settings)

	return &Exchange{
		Place: func(ctx context.Context, symbol, side string, qty money.Decimal, limitPrice money.Price) (string, error) {
			out, err := cb.Execute(func() (any, error) {
				return inner.Place(ctx, symbol, side, qty, limitPrice)
			})
			if err != nil {
				return "", err
			}
			return out.(string), nil
		},
		Get: func(ctx context.Context, exchangeOrderID string) (OrderState, error) {
			out, err := cb.Execute(func() (any, error) {
				return inner.Get(ctx, exchangeOrderID)
			})
			if err != nil {
				return OrderState{}, err
			}
			return out.(OrderState), nil
		},
		Cancel: func(ctx context.Context, exchangeOrderID string) error {
			_, err := cb.Execute(func() (any, error) {
				return nil, inner.Cancel(ctx, exchangeOrderID)
			})
			return err
		},
	}
}
