package policy

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func allowCtx() Context {
	return Context{
		BudgetSignal:   BudgetAllow,
		HealthStatus:   HealthGreen,
		RiskAssessment: RiskNormal,
	}
}

func TestEvaluateOrderIsFixedAndShortCircuits(t *testing.T) {
	e := New()

	d := e.Evaluate(Context{KillSwitchActive: true, BudgetSignal: BudgetDeny})
	if d.Outcome != Halt || d.BlockingGate != "kill_switch" {
		t.Fatalf("kill switch should win over budget: %+v", d)
	}
}

func TestEvaluateAllowOnAllClear(t *testing.T) {
	e := New()
	d := e.Evaluate(allowCtx())
	if d.Outcome != Allow {
		t.Fatalf("expected ALLOW, got %+v", d)
	}
}

func TestEvaluateNeutralOnDegradedHealth(t *testing.T) {
	e := New()
	ctx := allowCtx()
	ctx.HealthStatus = HealthYellow
	d := e.Evaluate(ctx)
	if d.Outcome != Neutral {
		t.Fatalf("expected NEUTRAL, got %+v", d)
	}
}

func TestLatchStaysHaltUntilReset(t *testing.T) {
	e := New()
	e.Evaluate(Context{KillSwitchActive: true})
	if !e.IsLatched() {
		t.Fatal("expected latch set after HALT")
	}

	d := e.Evaluate(allowCtx())
	if d.Outcome != Halt {
		t.Fatalf("expected latched HALT even with clean inputs, got %+v", d)
	}

	audited := false
	err := e.ResetLatch("op-a", "incident resolved", uuid.New(), func(actor, reason string, _ uuid.UUID, _ time.Time) error {
		audited = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !audited {
		t.Fatal("expected audit callback to run before latch clears")
	}
}

func TestResetLatchRequiresReasonAndActor(t *testing.T) {
	e := New()
	e.Evaluate(Context{KillSwitchActive: true})
	if err := e.ResetLatch("", "reason", uuid.New(), nil); err == nil {
		t.Fatal("expected error for empty actor")
	}
	if err := e.ResetLatch("actor", "", uuid.New(), nil); err == nil {
		t.Fatal("expected error for empty reason")
	}
}

func TestResetLatchClearsAndAllowsAgain(t *testing.T) {
	e := New()
	e.Evaluate(Context{KillSwitchActive: true})
	if err := e.ResetLatch("op-a", "incident resolved", uuid.New(), nil); err != nil {
		t.Fatal(err)
	}
	if e.IsLatched() {
		t.Fatal("expected latch cleared")
	}
	d := e.Evaluate(allowCtx())
	if d.Outcome != Allow {
		t.Fatalf("expected ALLOW after reset, got %+v", d)
	}
}
