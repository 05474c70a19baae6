// Package rgi implements trust synthesis (L5): a learned trust probability
// that multiplies advisory confidence and a health score into an
// adjusted_confidence gated at 0.95. Every internal error is swallowed and
// answered with a neutral 0.5 — this is the one subsystem allowed to fail
// safe rather than surface a refusal, so learning faults never block
// trading.
package rgi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sawpanic/sentinel/internal/money"
)

// ExecutionGate is the adjusted_confidence threshold below which the
// caller should treat the trade as NEUTRAL rather than actionable.
var ExecutionGate = money.MustFromString("0.9500", money.ScaleProb)

// SafeModeAccuracyFloor is the Golden-Set accuracy threshold for safe-mode,
// under which every strategy's trust is forced to neutral. Nothing in this
// package compares an accuracy against it; safe-mode is set through
// SetSafeMode.
var SafeModeAccuracyFloor = money.MustFromString("0.7000", money.ScaleProb)

// PredictionTimeout bounds trust_probability; a slower model answer is
// treated exactly like an internal error (returns neutral).
const PredictionTimeout = 50 * time.Millisecond

// neutral is the fail-safe trust value used whenever anything goes wrong.
var neutral = money.MustFromString("0.5000", money.ScaleProb)

// TrustState is the persisted record for one (fingerprint, regime) pair.
type TrustState struct {
	StrategyFingerprint string
	RegimeTag           string
	TrustProbability    money.Prob
	TrainingSampleCount int64
	UpdatedAt           time.Time
}

// Repo is the persistence contract for learned trust state.
type Repo interface {
	Load(ctx context.Context, fingerprint, regimeTag string) (*TrustState, error)
}

// GoldenSetAccuracy reports the most recent Golden-Set evaluation accuracy.
// Implementations may read from a batch job's output table. RGI keeps the
// value passed to New but never queries it: neither a low score nor a
// reporting error latches safe-mode.
type GoldenSetAccuracy interface {
	Accuracy(ctx context.Context) (money.Prob, error)
}

// RGI is constructed once by the orchestrator and is safe for concurrent
// use; safeMode is the only mutable state, held in an atomic.Bool.
type RGI struct {
	repo     Repo
	accuracy GoldenSetAccuracy
	safeMode atomic.Bool
}

// New builds an RGI. accuracy may be nil; either way it is stored and not
// queried, and safe-mode changes only through SetSafeMode.
func New(repo Repo, accuracy GoldenSetAccuracy) *RGI {
	return &RGI{repo: repo, accuracy: accuracy}
}

// SafeModeActive reports whether safe-mode is currently latched.
func (r *RGI) SafeModeActive() bool { return r.safeMode.Load() }

// SetSafeMode is the only way safe-mode changes; RGI itself never compares
// a Golden-Set accuracy against SafeModeAccuracyFloor.
func (r *RGI) SetSafeMode(active bool) { r.safeMode.Store(active) }

// TrustProbability returns the learned trust for (fingerprint, regime). On
// a stored value outside [0,1], any error, safe-mode, or if repo exceeds
// PredictionTimeout, it returns neutral (0.5) rather than propagating the
// failure.
func (r *RGI) TrustProbability(ctx context.Context, fingerprint, regimeTag string) money.Prob {
	if r.safeMode.Load() {
		return money.Prob{Decimal: neutral}
	}

	type result struct {
		state *TrustState
		err   error
	}
	done := make(chan result, 1)

	timeoutCtx, cancel := context.WithTimeout(ctx, PredictionTimeout)
	defer cancel()

	go func() {
		state, err := r.repo.Load(timeoutCtx, fingerprint, regimeTag)
		done <- result{state, err}
	}()

	select {
	case <-timeoutCtx.Done():
		return money.Prob{Decimal: neutral}
	case res := <-done:
		if res.err != nil || res.state == nil {
			return money.Prob{Decimal: neutral}
		}
		p := res.state.TrustProbability.Decimal
		if p.IsNegative() || p.GreaterThan(money.NewFromInt(10000, money.ScaleProb)) {
			return money.Prob{Decimal: neutral}
		}
		return res.state.TrustProbability
	}
}

// AdjustedConfidence computes clamp(llmConf * trust * health, 0, 1) in
// fixed-point. A negative input degrades to neutral; a product above 1 is
// clamped to 1.
func AdjustedConfidence(llmConf, trust, health money.Prob) money.Prob {
	if llmConf.IsNegative() || trust.IsNegative() || health.IsNegative() {
		return money.Prob{Decimal: neutral}
	}
	product := llmConf.Decimal.Mul(trust.Decimal, money.ScaleProb)
	product = product.Mul(health.Decimal, money.ScaleProb)

	one := money.NewFromInt(10000, money.ScaleProb)
	if product.GreaterThan(one) {
		product = one
	}
	if product.IsNegative() {
		product = money.Zero(money.ScaleProb)
	}
	return money.Prob{Decimal: product}
}

// Recommend reports whether adjustedConfidence clears the execution gate.
// Below the gate, callers must treat the signal as NEUTRAL regardless of
// anything else the policy evaluator says — advisory confidence is never
// itself an authorization.
func Recommend(adjustedConfidence money.Prob) bool {
	return adjustedConfidence.GreaterOrEqual(ExecutionGate)
}
