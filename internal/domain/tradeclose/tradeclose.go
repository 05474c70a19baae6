// Package tradeclose implements the trade-close handler: once the order
// manager reconciles a fill, this computes the realized P&L, classifies the
// outcome, persists the ClosedTrade row the circuit breaker (L3) derives its
// lockout decisions from, and advances the originating ApprovalRequest
// through FILLED -> CLOSED -> SETTLED. Grounded in
// original_source/app/logic/trade_close_handler.py's role (RGI learning
// integration is out of scope per SPEC_FULL.md §1 — TrustState is written
// by a separate training job, not this handler) and in the teacher's
// decimal-only arithmetic discipline.
package tradeclose

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/domain/orders"
	"github.com/sawpanic/sentinel/internal/domain/risk"
	"github.com/sawpanic/sentinel/internal/money"
	"github.com/sawpanic/sentinel/internal/persistence"
)

// breakevenEpsilon matches risk.epsilon's fractional-distance convention:
// a |pnl_pct| smaller than this is BREAKEVEN rather than WIN/LOSS.
var breakevenEpsilon = money.MustFromString("0.0001", money.ScalePercent)

// Handler is constructed once by the orchestrator and invoked once per
// reconciled trade.
type Handler struct {
	trades persistence.ClosedTradeRepo
	hitl   *hitl.Gateway
	now    func() time.Time
}

// New builds a Handler. hitlGateway may be nil if HITL is disabled for this
// symbol's trade path, in which case the HITL transition steps are skipped.
func New(trades persistence.ClosedTradeRepo, hitlGateway *hitl.Gateway) *Handler {
	return &Handler{trades: trades, hitl: hitlGateway, now: time.Now}
}

// Close computes realized P&L from permit and recon, writes the ClosedTrade
// row, and — when tradeID is non-empty — advances the approval request
// through FILLED -> CLOSED -> SETTLED. qty is the reconciled filled
// quantity, not the originally approved quantity, so a partial fill still
// records its true size.
func (h *Handler) Close(ctx context.Context, tradeID, symbol, side string, permit risk.ExecutionPermit, recon orders.Reconciliation) (persistence.ClosedTrade, error) {
	if tradeID != "" && h.hitl != nil {
		if _, err := h.hitl.Transition(ctx, tradeID, hitl.StatusFilled); err != nil {
			return persistence.ClosedTrade{}, fmt.Errorf("tradeclose: transition to FILLED: %w", err)
		}
	}

	pnlZAR, pnlPct := realizedPnL(side, permit.EntryPrice, recon.AvgPrice, recon.FilledQty)
	outcome := classify(pnlPct)

	trade := persistence.ClosedTrade{
		CorrelationID: permit.CorrelationID,
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    permit.EntryPrice.String(),
		ExitPrice:     recon.AvgPrice.String(),
		Qty:           recon.FilledQty.String(),
		PnLZAR:        pnlZAR.String(),
		PnLPct:        pnlPct.String(),
		Outcome:       string(outcome),
		ClosedAt:      h.now().UTC(),
	}

	if err := h.trades.Insert(ctx, trade); err != nil {
		return persistence.ClosedTrade{}, fmt.Errorf("tradeclose: insert closed trade: %w", err)
	}

	if tradeID != "" && h.hitl != nil {
		if _, err := h.hitl.Transition(ctx, tradeID, hitl.StatusClosed); err != nil {
			return trade, fmt.Errorf("tradeclose: transition to CLOSED: %w", err)
		}
		if _, err := h.hitl.Transition(ctx, tradeID, hitl.StatusSettled); err != nil {
			return trade, fmt.Errorf("tradeclose: transition to SETTLED: %w", err)
		}
	}

	return trade, nil
}

// Outcome classifies a closed trade's realized P&L.
type Outcome string

const (
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
)

func classify(pnlPct money.Percent) Outcome {
	abs := pnlPct.Decimal.Abs()
	if abs.LessThan(breakevenEpsilon) {
		return OutcomeBreakeven
	}
	if pnlPct.Decimal.IsPositive() {
		return OutcomeWin
	}
	return OutcomeLoss
}

// realizedPnL computes (exit-entry)*qty for BUY, (entry-exit)*qty for SELL,
// and the fraction of planned notional that P&L represents.
func realizedPnL(side string, entry, exit money.Price, qty money.Decimal) (money.ZAR, money.Percent) {
	diff := exit.Decimal.Sub(entry.Decimal)
	if side == "SELL" {
		diff = entry.Decimal.Sub(exit.Decimal)
	}
	pnlZAR := diff.Mul(qty, money.ScaleZAR)

	notional := entry.Decimal.Mul(qty, money.ScaleZAR)
	var pnlPct money.Decimal
	if notional.IsZero() {
		pnlPct = money.Zero(money.ScalePercent)
	} else {
		pnlPct = pnlZAR.Div(notional, money.ScalePercent)
	}
	return money.ZAR{Decimal: pnlZAR}, money.Percent{Decimal: pnlPct}
}
