// Package risk implements the risk governor (L4): a pure function from
// account equity and a proposed entry/stop to an immutable ExecutionPermit.
package risk

import (
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/money"
)

// DefaultMaxSlippagePct and DefaultTimeoutSeconds are the permit ceilings a
// caller may narrow but never widen. Percent values are fractions
// throughout this codebase (0.0050 == 0.5%), matching guardian's and
// breaker's thresholds.
var DefaultMaxSlippagePct = money.MustFromString("0.0050", money.ScalePercent)

const DefaultTimeoutSeconds = 30

// epsilon is the minimum fractional stop distance accepted; stops closer
// than this to entry are rejected as degenerate.
var epsilon = money.MustFromString("0.0001", money.ScalePercent)

// ExecutionPermit is the immutable authorization to place exactly one
// order, consumed at most once by the order manager.
type ExecutionPermit struct {
	CorrelationID    uuid.UUID
	ApprovedQty      money.Decimal // lot-scale quantity
	EntryPrice       money.Price
	StopPrice        money.Price
	MaxSlippagePct   money.Percent
	TimeoutSeconds   int
	PlannedRiskZAR   money.ZAR
	CreatedAt        time.Time
}

// Governor is a pure function object; MaxRiskZAR is the hard per-trade cap
// (MAX_RISK_ZAR) and LotSize is the smallest tradable quantity increment
// qty is floored to.
type Governor struct {
	MaxRiskZAR money.ZAR
	LotSize    money.Decimal
}

// New builds a Governor. lotSize must be a positive Decimal at the scale
// quantities are expressed in (the instrument's lot precision).
func New(maxRiskZAR money.ZAR, lotSize money.Decimal) *Governor {
	return &Governor{MaxRiskZAR: maxRiskZAR, LotSize: lotSize}
}

// Evaluate derives a permit from equity and the proposed entry/stop. atr is
// optional (pass nil when unavailable); when supplied it must be positive.
func (g *Governor) Evaluate(corrID uuid.UUID, now time.Time, equity money.ZAR, entry, stop money.Price, atr *money.Percent) (ExecutionPermit, error) {
	if !entry.IsPositive() {
		return ExecutionPermit{}, apperr.New(apperr.CodeRiskZeroQty, "entry price must be positive")
	}
	if !stop.IsPositive() {
		return ExecutionPermit{}, apperr.New(apperr.CodeRiskZeroQty, "stop price must be positive")
	}

	distance := entry.Decimal.Sub(stop.Decimal).Abs()
	fracDistance := distance.Div(entry.Decimal, money.ScalePercent)
	if fracDistance.LessThan(epsilon) {
		return ExecutionPermit{}, apperr.New(apperr.CodeRiskZeroQty, "stop distance too close to entry")
	}

	if atr != nil && !atr.IsPositive() {
		return ExecutionPermit{}, apperr.New(apperr.CodeRiskZeroQty, "atr must be positive when supplied")
	}

	// risk_zar is sized at 1% of equity, hard-capped at MAX_RISK_ZAR. The cap
	// is enforced by the min() itself; see DESIGN.md for why this governor
	// does not also reject when the uncapped 1%-of-equity figure exceeds
	// MAX_RISK_ZAR (it is sized down instead of refused).
	onePct := equity.Decimal.Mul(money.MustFromString("0.01", money.ScalePercent), money.ScaleZAR)
	riskZAR := money.Min(onePct, g.MaxRiskZAR.Decimal)

	qty := riskZAR.DivFloor(distance, g.LotSize.Scale())
	qty = floorToLot(qty, g.LotSize)

	if qty.IsZero() || !qty.IsPositive() {
		return ExecutionPermit{}, apperr.New(apperr.CodeRiskZeroQty, "computed quantity rounds to zero lots")
	}

	return ExecutionPermit{
		CorrelationID:  corrID,
		ApprovedQty:    qty,
		EntryPrice:     entry,
		StopPrice:      stop,
		MaxSlippagePct: money.Percent{Decimal: DefaultMaxSlippagePct},
		TimeoutSeconds: DefaultTimeoutSeconds,
		PlannedRiskZAR: money.ZAR{Decimal: riskZAR.Rescale(money.ScaleZAR)},
		CreatedAt:      now.UTC(),
	}, nil
}

// floorToLot floors qty down to the nearest multiple of lot, never up.
func floorToLot(qty, lot money.Decimal) money.Decimal {
	if lot.IsZero() {
		return qty
	}
	units := qty.DivFloor(lot, 0)
	return units.Mul(lot, lot.Scale())
}
