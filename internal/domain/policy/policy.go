// Package policy implements the permission policy evaluator (L6): a fixed,
// short-circuit, ordered chain producing ALLOW / NEUTRAL / HALT, latched so
// that once HALT is observed every subsequent evaluation returns HALT until
// an explicit, audited reset. Advisory confidence is never an input here —
// it cannot authorize a trade.
package policy

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Outcome is the policy's output domain.
type Outcome string

const (
	Allow   Outcome = "ALLOW"
	Neutral Outcome = "NEUTRAL"
	Halt    Outcome = "HALT"
)

// HealthStatus mirrors an external health check's most restrictive value
// when the source fails to report.
type HealthStatus string

const (
	HealthGreen  HealthStatus = "GREEN"
	HealthYellow HealthStatus = "YELLOW"
	HealthRed    HealthStatus = "RED"
)

// BudgetSignal mirrors a budget tracker's admission decision.
type BudgetSignal string

const (
	BudgetAllow BudgetSignal = "ALLOW"
	BudgetDeny  BudgetSignal = "DENY"
)

// RiskAssessment is the coarse severity an upstream risk check reports.
type RiskAssessment string

const (
	RiskNormal   RiskAssessment = "NORMAL"
	RiskElevated RiskAssessment = "ELEVATED"
	RiskCritical RiskAssessment = "CRITICAL"
)

// Context is the full set of inputs to a single evaluation. A zero-valued
// field (missing report) is treated as its most restrictive value by
// NewContext's defaults — callers should use NewContext rather than
// constructing Context directly when a source might fail to report.
type Context struct {
	KillSwitchActive bool
	BudgetSignal     BudgetSignal
	HealthStatus     HealthStatus
	RiskAssessment   RiskAssessment
}

// NewContext builds a Context defaulting every field to its most
// restrictive value, so a caller who simply never sets a field gets the
// safe behavior rather than an accidental ALLOW.
func NewContext() Context {
	return Context{
		BudgetSignal:   BudgetDeny,
		HealthStatus:   HealthRed,
		RiskAssessment: RiskCritical,
	}
}

// Decision is the result of a single evaluation.
type Decision struct {
	Outcome      Outcome
	ReasonCode   string
	BlockingGate string
}

// Evaluator is the latched, ordered policy chain. Zero value is not usable;
// construct with New.
type Evaluator struct {
	latched atomic.Bool
	mu      sync.Mutex
	now     func() time.Time
}

// New builds an Evaluator with the latch clear.
func New() *Evaluator {
	return &Evaluator{now: time.Now}
}

// Evaluate runs the fixed evaluation order:
//  1. kill_switch_active => HALT
//  2. budget_signal != ALLOW => HALT
//  3. health_status != GREEN => NEUTRAL
//  4. risk_assessment == CRITICAL => HALT
//  5. else => ALLOW
//
// If the latch is already set from a prior HALT, this returns HALT
// immediately without consulting ctx at all.
func (e *Evaluator) Evaluate(ctx Context) Decision {
	if e.latched.Load() {
		return Decision{Outcome: Halt, ReasonCode: "LATCHED", BlockingGate: "latch"}
	}

	var decision Decision
	switch {
	case ctx.KillSwitchActive:
		decision = Decision{Outcome: Halt, ReasonCode: "KILL_SWITCH_ACTIVE", BlockingGate: "kill_switch"}
	case ctx.BudgetSignal != BudgetAllow:
		decision = Decision{Outcome: Halt, ReasonCode: "BUDGET_NOT_ALLOW", BlockingGate: "budget"}
	case ctx.HealthStatus != HealthGreen:
		decision = Decision{Outcome: Neutral, ReasonCode: "HEALTH_NOT_GREEN", BlockingGate: "health"}
	case ctx.RiskAssessment == RiskCritical:
		decision = Decision{Outcome: Halt, ReasonCode: "RISK_CRITICAL", BlockingGate: "risk"}
	default:
		decision = Decision{Outcome: Allow, ReasonCode: "OK"}
	}

	if decision.Outcome == Halt {
		e.latched.Store(true)
	}
	return decision
}

// IsLatched reports whether a prior HALT is still in force.
func (e *Evaluator) IsLatched() bool { return e.latched.Load() }

// AuditFunc is called by ResetLatch with everything needed to write an
// audit entry before the latch actually clears.
type AuditFunc func(actor, reason string, correlationID uuid.UUID, at time.Time) error

// ResetLatch clears the HALT latch. reason and actor must be non-empty;
// the audit callback is invoked BEFORE the latch is cleared so a failed
// audit write leaves the system HALTed rather than silently open.
func (e *Evaluator) ResetLatch(actor, reason string, correlationID uuid.UUID, audit AuditFunc) error {
	if actor == "" || reason == "" {
		return fmt.Errorf("policy: reset_policy_latch requires actor and reason")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if audit != nil {
		if err := audit(actor, reason, correlationID, e.now().UTC()); err != nil {
			return fmt.Errorf("policy: audit reset_policy_latch: %w", err)
		}
	}
	e.latched.Store(false)
	return nil
}
