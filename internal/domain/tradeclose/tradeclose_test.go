package tradeclose

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentinel/internal/domain/orders"
	"github.com/sawpanic/sentinel/internal/domain/risk"
	"github.com/sawpanic/sentinel/internal/money"
	"github.com/sawpanic/sentinel/internal/persistence"
)

type fakeTradeRepo struct {
	trades []persistence.ClosedTrade
}

func (f *fakeTradeRepo) Insert(_ context.Context, t persistence.ClosedTrade) error {
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeTradeRepo) RecentForDay(_ context.Context, _ time.Time) ([]persistence.ClosedTrade, error) {
	return f.trades, nil
}

func permitAt(price string) risk.ExecutionPermit {
	p, _ := money.NewPrice(price)
	return risk.ExecutionPermit{
		CorrelationID: uuid.New(),
		EntryPrice:    p,
	}
}

func reconAt(price, qty string) orders.Reconciliation {
	p, _ := money.NewPrice(price)
	q, _ := money.NewFromString(qty, 8)
	return orders.Reconciliation{AvgPrice: p, FilledQty: q}
}

func TestCloseClassifiesWinForBuy(t *testing.T) {
	repo := &fakeTradeRepo{}
	h := New(repo, nil)

	permit := permitAt("100.00000000")
	recon := reconAt("110.00000000", "1.00000000")

	trade, err := h.Close(context.Background(), "", "BTC-ZAR", "BUY", permit, recon)
	require.NoError(t, err)
	require.Equal(t, string(OutcomeWin), trade.Outcome)
	require.Len(t, repo.trades, 1)
}

func TestCloseClassifiesLossForSell(t *testing.T) {
	repo := &fakeTradeRepo{}
	h := New(repo, nil)

	permit := permitAt("100.00000000")
	recon := reconAt("110.00000000", "1.00000000")

	trade, err := h.Close(context.Background(), "", "BTC-ZAR", "SELL", permit, recon)
	require.NoError(t, err)
	require.Equal(t, string(OutcomeLoss), trade.Outcome)
}

func TestCloseClassifiesBreakevenWithinEpsilon(t *testing.T) {
	repo := &fakeTradeRepo{}
	h := New(repo, nil)

	permit := permitAt("100.00000000")
	recon := reconAt("100.00000001", "1.00000000")

	trade, err := h.Close(context.Background(), "", "BTC-ZAR", "BUY", permit, recon)
	require.NoError(t, err)
	require.Equal(t, string(OutcomeBreakeven), trade.Outcome)
}
