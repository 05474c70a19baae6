package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/persistence"
)

type fakeTrades struct {
	trades []persistence.ClosedTrade
}

func (f *fakeTrades) Insert(_ context.Context, t persistence.ClosedTrade) error {
	f.trades = append([]persistence.ClosedTrade{t}, f.trades...)
	return nil
}

func (f *fakeTrades) RecentForDay(_ context.Context, _ time.Time) ([]persistence.ClosedTrade, error) {
	return f.trades, nil
}

func TestCheckTradingAllowedLocksOnDailyLoss(t *testing.T) {
	repo := &fakeTrades{trades: []persistence.ClosedTrade{
		{Outcome: "LOSS", PnLPct: "-0.0350"},
	}}
	b := New(repo)

	decision, err := b.CheckTradingAllowed(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Fatal("expected lockout on -3.5% daily pnl")
	}
	if decision.Reason != ReasonDailyLossExceeded {
		t.Fatalf("reason = %s", decision.Reason)
	}
}

func TestCheckTradingAllowedLocksOnThreeConsecutiveLosses(t *testing.T) {
	repo := &fakeTrades{trades: []persistence.ClosedTrade{
		{Outcome: "LOSS", PnLPct: "-0.1000"},
		{Outcome: "LOSS", PnLPct: "-0.1000"},
		{Outcome: "LOSS", PnLPct: "-0.1000"},
		{Outcome: "WIN", PnLPct: "0.5000"},
	}}
	b := New(repo)

	decision, err := b.CheckTradingAllowed(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Fatal("expected lockout on 3 consecutive losses")
	}
	if decision.Reason != ReasonConsecutiveLosses {
		t.Fatalf("reason = %s", decision.Reason)
	}
}

func TestCheckTradingAllowedPermitsHealthyDay(t *testing.T) {
	repo := &fakeTrades{trades: []persistence.ClosedTrade{
		{Outcome: "WIN", PnLPct: "0.3000"},
		{Outcome: "LOSS", PnLPct: "-0.1000"},
	}}
	b := New(repo)

	decision, err := b.CheckTradingAllowed(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Fatalf("expected trading allowed, got reason %s", decision.Reason)
	}
}

func TestConsecutiveLossBreaksOnInterveningWin(t *testing.T) {
	repo := &fakeTrades{trades: []persistence.ClosedTrade{
		{Outcome: "LOSS", PnLPct: "-0.1000"},
		{Outcome: "LOSS", PnLPct: "-0.1000"},
		{Outcome: "WIN", PnLPct: "0.3000"},
		{Outcome: "LOSS", PnLPct: "-0.1000"},
	}}
	b := New(repo)

	decision, err := b.CheckTradingAllowed(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Fatal("a win breaking up the streak should not trip consecutive-loss lockout")
	}
}
