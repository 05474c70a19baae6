// Package breaker implements the headless trading circuit breaker (L3): a
// lockout derived purely from persisted closed trades for the current UTC
// day. This is distinct from internal/net/circuit, which protects outbound
// HTTP calls — this breaker protects the trading decision itself and has
// no "override" input.
package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/money"
	"github.com/sawpanic/sentinel/internal/persistence"
)

// Reason identifies which rule fired.
type Reason string

const (
	ReasonDailyLossExceeded  Reason = "DAILY_LOSS_EXCEEDED"
	ReasonConsecutiveLosses  Reason = "CONSECUTIVE_LOSSES"
	ReasonNone               Reason = ""
)

const (
	dailyLossLockHours       = 24
	consecutiveLossLockHours = 12
	consecutiveLossCount     = 3
)

var dailyLossThreshold = money.MustFromString("-0.03", money.ScalePercent)

// LockoutDecision is the result of check_trading_allowed.
type LockoutDecision struct {
	Allowed         bool
	Reason          Reason
	LockUntil       time.Time
	DailyPnLPct     money.Percent
	ConsecutiveLoss int
}

// Breaker reads only from ClosedTradeRepo; it holds no mutable state of its
// own beyond an optional clock override for tests.
type Breaker struct {
	trades persistence.ClosedTradeRepo
	now    func() time.Time
}

// New builds a Breaker over the closed-trade repository.
func New(trades persistence.ClosedTradeRepo) *Breaker {
	return &Breaker{trades: trades, now: time.Now}
}

// CheckTradingAllowed evaluates both lockout rules in the fixed order the
// spec names: daily loss first, then consecutive losses. Either rule
// firing locks out all subsequent permits until its window expires.
func (b *Breaker) CheckTradingAllowed(ctx context.Context, corrID uuid.UUID) (LockoutDecision, error) {
	now := b.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	trades, err := b.trades.RecentForDay(ctx, dayStart)
	if err != nil {
		return LockoutDecision{}, fmt.Errorf("breaker: load closed trades: %w", err)
	}

	dailyPnLPct, err := sumDailyPnLPct(trades)
	if err != nil {
		return LockoutDecision{}, fmt.Errorf("breaker: sum daily pnl: %w", err)
	}

	if dailyPnLPct.LessOrEqual(dailyLossThreshold) {
		return LockoutDecision{
			Allowed:     false,
			Reason:      ReasonDailyLossExceeded,
			LockUntil:   now.Add(dailyLossLockHours * time.Hour),
			DailyPnLPct: money.Percent{Decimal: dailyPnLPct},
		}, nil
	}

	consecutive := countConsecutiveLosses(trades)
	if consecutive >= consecutiveLossCount {
		return LockoutDecision{
			Allowed:         false,
			Reason:          ReasonConsecutiveLosses,
			LockUntil:       now.Add(consecutiveLossLockHours * time.Hour),
			DailyPnLPct:     money.Percent{Decimal: dailyPnLPct},
			ConsecutiveLoss: consecutive,
		}, nil
	}

	return LockoutDecision{Allowed: true, DailyPnLPct: money.Percent{Decimal: dailyPnLPct}}, nil
}

func sumDailyPnLPct(trades []persistence.ClosedTrade) (money.Decimal, error) {
	total := money.Zero(money.ScalePercent)
	for _, t := range trades {
		pct, err := money.NewFromString(t.PnLPct, money.ScalePercent)
		if err != nil {
			return money.Decimal{}, err
		}
		total = total.Add(pct)
	}
	return total.Rescale(money.ScalePercent), nil
}

// countConsecutiveLosses reports how many of the most recent closed trades,
// starting from the most recent, were all LOSS. trades is assumed ordered
// most-recent-first per the ClosedTradeRepo contract.
func countConsecutiveLosses(trades []persistence.ClosedTrade) int {
	count := 0
	for _, t := range trades {
		if t.Outcome != "LOSS" {
			break
		}
		count++
		if count >= consecutiveLossCount {
			break
		}
	}
	return count
}
