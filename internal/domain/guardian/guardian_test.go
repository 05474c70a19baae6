package guardian

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/money"
)

type fakeRepo struct {
	lock *Lock
}

func (f *fakeRepo) Save(_ context.Context, lock Lock) error { f.lock = &lock; return nil }
func (f *fakeRepo) Load(_ context.Context) (*Lock, error)   { return f.lock, nil }
func (f *fakeRepo) Clear(_ context.Context) error           { f.lock = nil; return nil }

func TestCheckVitalsLocksAtThreshold(t *testing.T) {
	repo := &fakeRepo{}
	g := New(repo, DefaultDailyLossLimit)

	var locked Lock
	called := 0
	g.OnLock(func(l Lock) { called++; locked = l })

	snap := EquitySnapshot{
		StartingEquity: money.ZAR{Decimal: money.MustFromString("100000.00", money.ScaleZAR)},
		CurrentEquity:  money.ZAR{Decimal: money.MustFromString("98900.00", money.ScaleZAR)}, // 1.1% loss
		CorrelationID:  uuid.New(),
	}

	report, err := g.CheckVitals(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Locked {
		t.Fatal("expected lock at 1.1% daily loss")
	}
	if called != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", called)
	}
	if locked.Reason != ReasonDailyLossExceeded {
		t.Fatalf("reason = %s", locked.Reason)
	}
	if !g.IsLocked() {
		t.Fatal("IsLocked should be true")
	}
}

func TestCheckVitalsStaysUnlockedBelowThreshold(t *testing.T) {
	repo := &fakeRepo{}
	g := New(repo, DefaultDailyLossLimit)

	snap := EquitySnapshot{
		StartingEquity: money.ZAR{Decimal: money.MustFromString("100000.00", money.ScaleZAR)},
		CurrentEquity:  money.ZAR{Decimal: money.MustFromString("99500.00", money.ScaleZAR)}, // 0.5% loss
		CorrelationID:  uuid.New(),
	}

	report, err := g.CheckVitals(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if report.Locked {
		t.Fatal("should not lock below threshold")
	}
}

func TestManualUnlockRequiresReason(t *testing.T) {
	repo := &fakeRepo{}
	g := New(repo, DefaultDailyLossLimit)
	if _, err := g.ManualUnlock(context.Background(), "", "op", uuid.New()); err == nil {
		t.Fatal("expected error on empty reason")
	}
}

func TestManualUnlockClearsLockAndRecanLock(t *testing.T) {
	repo := &fakeRepo{}
	g := New(repo, DefaultDailyLossLimit)

	snap := EquitySnapshot{
		StartingEquity: money.ZAR{Decimal: money.MustFromString("100000.00", money.ScaleZAR)},
		CurrentEquity:  money.ZAR{Decimal: money.MustFromString("98000.00", money.ScaleZAR)},
		CorrelationID:  uuid.New(),
	}
	if _, err := g.CheckVitals(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	if !g.IsLocked() {
		t.Fatal("expected locked")
	}

	ok, err := g.ManualUnlock(context.Background(), "operator override", "op-a", uuid.New())
	if err != nil || !ok {
		t.Fatalf("unlock failed: ok=%v err=%v", ok, err)
	}
	if g.IsLocked() {
		t.Fatal("expected unlocked after manual unlock")
	}

	// Loss condition still holds: next CheckVitals re-locks immediately.
	report, err := g.CheckVitals(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Locked {
		t.Fatal("expected immediate re-lock since loss condition still holds")
	}
}

func TestHydrateRestoresLockAcrossRestart(t *testing.T) {
	repo := &fakeRepo{lock: &Lock{LockID: uuid.New(), Reason: ReasonManual}}
	g := New(repo, DefaultDailyLossLimit)
	if err := g.Hydrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !g.IsLocked() {
		t.Fatal("expected hydrate to restore lock")
	}
}
