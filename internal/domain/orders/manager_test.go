package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/domain/risk"
	"github.com/sawpanic/sentinel/internal/money"
)

func permitFor(qty, entry, stop string) risk.ExecutionPermit {
	return risk.ExecutionPermit{
		CorrelationID:  uuid.New(),
		ApprovedQty:    money.MustFromString(qty, 8),
		EntryPrice:     money.Price{Decimal: money.MustFromString(entry, money.ScalePrice)},
		StopPrice:      money.Price{Decimal: money.MustFromString(stop, money.ScalePrice)},
		MaxSlippagePct: money.Percent{Decimal: risk.DefaultMaxSlippagePct},
		TimeoutSeconds: 30,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestExecuteFillsImmediatelyAgainstMockExchange(t *testing.T) {
	exch := NewMockExchange()
	m := New(exch, true)
	m.sleep = func(time.Duration) {}

	permit := permitFor("0.05000000", "1850000.00000000", "1830000.00000000")
	rec, err := m.Execute(context.Background(), "BTC-ZAR", "BUY", permit)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outcome != OutcomeMockFilled {
		t.Fatalf("outcome = %s", rec.Outcome)
	}
	if rec.FilledQty.String() != "0.05000000" {
		t.Fatalf("filled qty = %s", rec.FilledQty.String())
	}
	if rec.ExchangeOrderID == "" {
		t.Fatal("expected an exchange order id")
	}
}

func TestExecuteClassifiesRealFillAsFilled(t *testing.T) {
	exch := NewMockExchange()
	m := New(exch, false)
	m.sleep = func(time.Duration) {}

	permit := permitFor("0.05000000", "1850000.00000000", "1830000.00000000")
	rec, err := m.Execute(context.Background(), "BTC-ZAR", "BUY", permit)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outcome != OutcomeFilled {
		t.Fatalf("outcome = %s", rec.Outcome)
	}
}

func TestExecuteCancelsOnTimeout(t *testing.T) {
	var canceled bool
	exch := &Exchange{
		Place: func(_ context.Context, _, _ string, _ money.Decimal, _ money.Price) (string, error) {
			return "order-1", nil
		},
		Get: func(_ context.Context, id string) (OrderState, error) {
			if canceled {
				return OrderState{ExchangeOrderID: id, Status: OrderStatusCancelled,
					FilledQty: money.Zero(money.ScalePrice), AvgPrice: money.ZeroPrice()}, nil
			}
			return OrderState{ExchangeOrderID: id, Status: OrderStatusOpen}, nil
		},
		Cancel: func(_ context.Context, _ string) error {
			canceled = true
			return nil
		},
	}
	m := New(exch, false)
	start := time.Now()
	m.now = func() time.Time { return start }
	advanced := false
	m.sleep = func(time.Duration) {
		if !advanced {
			advanced = true
			m.now = func() time.Time { return start.Add(31 * time.Second) }
		}
	}

	permit := permitFor("0.05000000", "1850000.00000000", "1830000.00000000")
	rec, err := m.Execute(context.Background(), "BTC-ZAR", "BUY", permit)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s", rec.Outcome)
	}
	if !canceled {
		t.Fatal("expected cancel to have been called")
	}
}

func TestLimitPriceAppliesSlippageCeilingForBuy(t *testing.T) {
	permit := permitFor("0.05000000", "1000000.00000000", "990000.00000000")
	price := limitPriceFor("BUY", permit)
	if !price.GreaterThan(permit.EntryPrice.Decimal) {
		t.Fatalf("expected buy limit above entry, got %s", price.String())
	}
}

func TestLimitPriceAppliesSlippageFloorForSell(t *testing.T) {
	permit := permitFor("0.05000000", "1000000.00000000", "1010000.00000000")
	price := limitPriceFor("SELL", permit)
	if !price.LessThan(permit.EntryPrice.Decimal) {
		t.Fatalf("expected sell limit below entry, got %s", price.String())
	}
}
