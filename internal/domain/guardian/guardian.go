// Package guardian implements the process-wide hard-stop (L2): a single
// SYSTEM_LOCKED flag backed by a durable lock record, tripped by daily
// equity-loss monitoring and cleared only by an explicit, audited manual
// unlock. Guardian is the sole owner of SYSTEM_LOCKED; every other
// component only reads it through CheckVitals/IsLocked.
package guardian

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/money"
)

// Reason is why a lock was set.
type Reason string

const (
	ReasonDailyLossExceeded Reason = "DAILY_LOSS_EXCEEDED"
	ReasonManual            Reason = "MANUAL"
	ReasonPanic             Reason = "PANIC"
)

// DefaultDailyLossLimit is the fraction of starting equity that trips a
// lock; overridable via GUARDIAN_DAILY_LOSS_LIMIT_PCT.
var DefaultDailyLossLimit = money.MustFromString("0.01", money.ScalePercent)

// Lock is the durable record Guardian writes when it trips and rehydrates
// from at startup.
type Lock struct {
	LockID        uuid.UUID
	LockedAt      time.Time
	Reason        Reason
	DailyLossZAR  money.ZAR
	DailyLossPct  money.Percent
	CorrelationID uuid.UUID
}

// Repo is the persistence contract for the single current lock record.
// Save/Clear are full replace/delete operations — there is exactly one
// logical lock slot.
type Repo interface {
	Save(ctx context.Context, lock Lock) error
	Load(ctx context.Context) (*Lock, error)
	Clear(ctx context.Context) error
}

// EquitySnapshot is the input to CheckVitals.
type EquitySnapshot struct {
	StartingEquity money.ZAR
	CurrentEquity  money.ZAR
	CorrelationID  uuid.UUID
}

// VitalsReport is returned from every CheckVitals call.
type VitalsReport struct {
	Locked       bool
	DailyLossPct money.Percent
	Lock         *Lock
}

// Guardian is constructed once by the orchestrator and handed by reference
// to every component that needs to observe SYSTEM_LOCKED.
type Guardian struct {
	locked    atomic.Bool
	mu        sync.Mutex // serializes the lock-transition critical section
	repo      Repo
	threshold money.Percent
	callbacks []func(Lock)
	current   *Lock
	now       func() time.Time
}

// New builds a Guardian against repo, using threshold as the daily-loss
// fraction that trips a lock (pass guardian.DefaultDailyLossLimit unless
// GUARDIAN_DAILY_LOSS_LIMIT_PCT overrides it).
func New(repo Repo, threshold money.Percent) *Guardian {
	return &Guardian{repo: repo, threshold: threshold, now: time.Now}
}

// Hydrate loads any persisted lock record at startup so a restart does not
// clear SYSTEM_LOCKED.
func (g *Guardian) Hydrate(ctx context.Context) error {
	lock, err := g.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("guardian: hydrate: %w", err)
	}
	if lock != nil {
		g.mu.Lock()
		g.current = lock
		g.locked.Store(true)
		g.mu.Unlock()
	}
	return nil
}

// IsLocked reports the current SYSTEM_LOCKED value without touching the
// lock record.
func (g *Guardian) IsLocked() bool { return g.locked.Load() }

// OnLock registers a callback invoked synchronously, exactly once per
// lock-trip, inside the lock-transition critical section. Callers observe
// every lock before CheckVitals returns, satisfying the ordering guarantee
// in §5: the Guardian lock event is seen by every component before any new
// permit is issued.
func (g *Guardian) OnLock(cb func(Lock)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, cb)
}

// CheckVitals computes daily_loss = starting - current; if the loss
// fraction of starting equity is >= threshold, atomically locks, persists
// the lock record, and fans the lock out to every registered callback
// before returning. If already locked, it is a no-op that just reports the
// current state — manual_unlock is the only way to clear it.
func (g *Guardian) CheckVitals(ctx context.Context, snap EquitySnapshot) (VitalsReport, error) {
	if g.locked.Load() {
		g.mu.Lock()
		cur := g.current
		g.mu.Unlock()
		pct := money.Percent{}
		if cur != nil {
			pct = cur.DailyLossPct
		}
		return VitalsReport{Locked: true, DailyLossPct: pct, Lock: cur}, nil
	}

	loss := snap.StartingEquity.Decimal.Sub(snap.CurrentEquity.Decimal)
	var pct money.Decimal
	if snap.StartingEquity.Decimal.IsZero() {
		pct = money.Zero(money.ScalePercent)
	} else {
		pct = loss.Div(snap.StartingEquity.Decimal, money.ScalePercent)
	}

	if pct.LessThan(g.threshold.Decimal) {
		return VitalsReport{Locked: false, DailyLossPct: money.Percent{Decimal: pct}}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Re-check under the lock in case a concurrent CheckVitals already
	// tripped it between the atomic load above and here.
	if g.locked.Load() {
		return VitalsReport{Locked: true, DailyLossPct: money.Percent{Decimal: pct}, Lock: g.current}, nil
	}

	lock := Lock{
		LockID:        uuid.New(),
		LockedAt:      g.now().UTC(),
		Reason:        ReasonDailyLossExceeded,
		DailyLossZAR:  money.ZAR{Decimal: loss},
		DailyLossPct:  money.Percent{Decimal: pct},
		CorrelationID: snap.CorrelationID,
	}
	if err := g.repo.Save(ctx, lock); err != nil {
		return VitalsReport{}, fmt.Errorf("guardian: persist lock: %w", err)
	}

	g.current = &lock
	g.locked.Store(true)
	for _, cb := range g.callbacks {
		cb(lock)
	}

	return VitalsReport{Locked: true, DailyLossPct: lock.DailyLossPct, Lock: &lock}, nil
}

// ManualUnlock clears SYSTEM_LOCKED and the persisted record. reason must
// be non-empty; callers are expected to audit this call themselves. If the
// underlying loss condition still holds, the very next CheckVitals
// re-locks immediately.
func (g *Guardian) ManualUnlock(ctx context.Context, reason, actor string, corrID uuid.UUID) (bool, error) {
	if reason == "" {
		return false, fmt.Errorf("guardian: manual unlock requires a non-empty reason")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.locked.Load() {
		return false, nil
	}
	if err := g.repo.Clear(ctx); err != nil {
		return false, fmt.Errorf("guardian: clear lock: %w", err)
	}
	g.current = nil
	g.locked.Store(false)
	return true, nil
}

// CurrentLock returns the lock record backing the current SYSTEM_LOCKED
// state, or nil when unlocked.
func (g *Guardian) CurrentLock() *Lock {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
