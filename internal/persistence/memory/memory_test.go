package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/domain/guardian"
	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/persistence"
)

func TestSignalRepoInsertIsIdempotent(t *testing.T) {
	r := NewSignalRepo()
	ctx := context.Background()
	sig := signal.Signal{CorrelationID: uuid.New(), Source: "tradingview", ExternalID: "evt-1"}

	id1, inserted1, err := r.Insert(ctx, sig)
	if err != nil || !inserted1 {
		t.Fatalf("first insert: id=%v inserted=%v err=%v", id1, inserted1, err)
	}

	sig2 := signal.Signal{CorrelationID: uuid.New(), Source: "tradingview", ExternalID: "evt-1"}
	id2, inserted2, err := r.Insert(ctx, sig2)
	if err != nil {
		t.Fatal(err)
	}
	if inserted2 {
		t.Error("second insert with same (source, external_id) should not report inserted")
	}
	if id2 != id1 {
		t.Error("second insert should resolve to the original correlation id")
	}
}

func TestHITLRepoCompareAndSwapStatus(t *testing.T) {
	r := NewHITLRepo()
	ctx := context.Background()
	req := hitl.ApprovalRequest{TradeID: "t1", Status: hitl.StatusAwaitingApproval}
	if err := r.Insert(ctx, req); err != nil {
		t.Fatal(err)
	}

	updated := req
	updated.Status = hitl.StatusApproved
	ok, err := r.CompareAndSwapStatus(ctx, "t1", hitl.StatusAwaitingApproval, updated)
	if err != nil || !ok {
		t.Fatalf("expected successful CAS, got ok=%v err=%v", ok, err)
	}

	// A second CAS against the now-stale expected status must fail.
	ok, err = r.CompareAndSwapStatus(ctx, "t1", hitl.StatusAwaitingApproval, updated)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("CAS against a stale expected status should not succeed")
	}

	got, err := r.Get(ctx, "t1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Status != hitl.StatusApproved {
		t.Errorf("status = %s, want APPROVED", got.Status)
	}
}

func TestHITLRepoListNonTerminalExcludesSettled(t *testing.T) {
	r := NewHITLRepo()
	ctx := context.Background()
	now := time.Now()

	_ = r.Insert(ctx, hitl.ApprovalRequest{TradeID: "open", Status: hitl.StatusAwaitingApproval, ExpiresAt: now})
	_ = r.Insert(ctx, hitl.ApprovalRequest{TradeID: "done", Status: hitl.StatusSettled, ExpiresAt: now})

	rows, err := r.ListNonTerminal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TradeID != "open" {
		t.Fatalf("expected only the non-terminal row, got %+v", rows)
	}
}

func TestGuardianRepoSaveLoadClear(t *testing.T) {
	r := NewGuardianRepo()
	ctx := context.Background()

	if lock, err := r.Load(ctx); err != nil || lock != nil {
		t.Fatalf("expected no lock initially, got %+v err=%v", lock, err)
	}

	if err := r.Save(ctx, guardian.Lock{Reason: "daily loss"}); err != nil {
		t.Fatal(err)
	}
	lock, err := r.Load(ctx)
	if err != nil || lock == nil || lock.Reason != "daily loss" {
		t.Fatalf("unexpected lock after save: %+v err=%v", lock, err)
	}

	if err := r.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if lock, err := r.Load(ctx); err != nil || lock != nil {
		t.Fatalf("expected no lock after clear, got %+v err=%v", lock, err)
	}
}

func TestClosedTradeRepoRecentForDayFiltersByUTCDay(t *testing.T) {
	r := NewClosedTradeRepo()
	ctx := context.Background()

	day := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	inDay := persistence.ClosedTrade{ClosedAt: time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)}
	otherDay := persistence.ClosedTrade{ClosedAt: time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC)}

	_ = r.Insert(ctx, inDay)
	_ = r.Insert(ctx, otherDay)

	rows, err := r.RecentForDay(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one trade for the day, got %d", len(rows))
	}
}

func TestNewRepositoryWiresEveryRepo(t *testing.T) {
	repo := NewRepository()
	if repo.Signals == nil || repo.Approvals == nil || repo.Audit == nil ||
		repo.Guardian == nil || repo.Trust == nil || repo.ClosedTrades == nil {
		t.Fatalf("NewRepository left a nil repo: %+v", repo)
	}
}
