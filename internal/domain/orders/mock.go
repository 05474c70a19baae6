package orders

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/money"
)

// NewMockExchange builds an *Exchange that fills immediately at the
// requested limit price. It backs MOCK_MODE=true per the spec's
// Non-goals around real exchange connectivity, and backs the fill-path
// order manager tests in this package; the timeout test builds its own
// Exchange.
func NewMockExchange() *Exchange {
	m := &mockState{orders: map[string]OrderState{}}
	return &Exchange{
		Place:  m.place,
		Get:    m.get,
		Cancel: m.cancel,
	}
}

type mockState struct {
	mu     sync.Mutex
	orders map[string]OrderState
}

func (m *mockState) place(_ context.Context, _, _ string, qty money.Decimal, limitPrice money.Price) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.orders[id] = OrderState{
		ExchangeOrderID: id,
		Status:          OrderStatusFilled,
		FilledQty:       qty,
		AvgPrice:        limitPrice,
	}
	return id, nil
}

func (m *mockState) get(_ context.Context, exchangeOrderID string) (OrderState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.orders[exchangeOrderID]
	if !ok {
		return OrderState{}, fmt.Errorf("orders: mock exchange has no order %q", exchangeOrderID)
	}
	return s, nil
}

func (m *mockState) cancel(_ context.Context, exchangeOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.orders[exchangeOrderID]
	if !ok {
		return fmt.Errorf("orders: mock exchange has no order %q", exchangeOrderID)
	}
	s.Status = OrderStatusCancelled
	m.orders[exchangeOrderID] = s
	return nil
}
