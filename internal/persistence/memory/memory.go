// Package memory implements every persistence.*Repo contract in-process,
// backing MOCK_MODE and PG_ENABLED=false deployments and giving the
// orchestrator a dependency-complete Repository without a database.
// Unlike internal/persistence/postgres, state does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/domain/guardian"
	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/domain/rgi"
	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/persistence"
)

// SignalRepo implements signal.Repo, deduplicating on (source, external_id).
type SignalRepo struct {
	mu   sync.Mutex
	seen map[string]uuid.UUID
}

func NewSignalRepo() *SignalRepo {
	return &SignalRepo{seen: make(map[string]uuid.UUID)}
}

func (r *SignalRepo) Insert(_ context.Context, sig signal.Signal) (uuid.UUID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sig.Source + "|" + sig.ExternalID
	if existing, ok := r.seen[key]; ok {
		return existing, false, nil
	}
	r.seen[key] = sig.CorrelationID
	return sig.CorrelationID, true, nil
}

// HITLRepo implements hitl.Repo over a map keyed by trade id.
type HITLRepo struct {
	mu   sync.Mutex
	rows map[string]hitl.ApprovalRequest
}

func NewHITLRepo() *HITLRepo {
	return &HITLRepo{rows: make(map[string]hitl.ApprovalRequest)}
}

func (r *HITLRepo) Insert(_ context.Context, req hitl.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[req.TradeID] = req
	return nil
}

func (r *HITLRepo) Get(_ context.Context, tradeID string) (*hitl.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tradeID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *HITLRepo) CompareAndSwapStatus(_ context.Context, tradeID string, expected hitl.Status, updated hitl.ApprovalRequest) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[tradeID]
	if !ok || current.Status != expected {
		return false, nil
	}
	r.rows[tradeID] = updated
	return true, nil
}

func (r *HITLRepo) ListNonTerminal(_ context.Context) ([]hitl.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []hitl.ApprovalRequest
	for _, row := range r.rows {
		if !hitl.Terminal(row.Status) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

// GuardianRepo implements guardian.Repo over a single lock slot.
type GuardianRepo struct {
	mu   sync.Mutex
	lock *guardian.Lock
}

func NewGuardianRepo() *GuardianRepo {
	return &GuardianRepo{}
}

func (r *GuardianRepo) Save(_ context.Context, lock guardian.Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lock = &lock
	return nil
}

func (r *GuardianRepo) Load(_ context.Context) (*guardian.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lock, nil
}

func (r *GuardianRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lock = nil
	return nil
}

// TrustRepo implements rgi.Repo over a map keyed by (fingerprint, regime).
type TrustRepo struct {
	mu     sync.Mutex
	states map[string]rgi.TrustState
}

func NewTrustRepo() *TrustRepo {
	return &TrustRepo{states: make(map[string]rgi.TrustState)}
}

// Seed installs a trust record, for tests and MOCK_MODE fixtures.
func (r *TrustRepo) Seed(state rgi.TrustState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.StrategyFingerprint+"|"+state.RegimeTag] = state
}

func (r *TrustRepo) Load(_ context.Context, fingerprint, regimeTag string) (*rgi.TrustState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[fingerprint+"|"+regimeTag]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// AuditRepo implements persistence.AuditRepo as an append-only slice.
type AuditRepo struct {
	mu      sync.Mutex
	records []persistence.AuditRecord
	nextID  int64
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Append(_ context.Context, rec persistence.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	r.records = append(r.records, rec)
	return nil
}

func (r *AuditRepo) ListByCorrelation(_ context.Context, corrID uuid.UUID) ([]persistence.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []persistence.AuditRecord
	for _, rec := range r.records {
		if rec.CorrelationID == corrID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ClosedTradeRepo implements persistence.ClosedTradeRepo over a slice,
// exposing RecentForDay most-recent-first as the breaker requires.
type ClosedTradeRepo struct {
	mu     sync.Mutex
	trades []persistence.ClosedTrade
	nextID int64
}

func NewClosedTradeRepo() *ClosedTradeRepo {
	return &ClosedTradeRepo{}
}

func (r *ClosedTradeRepo) Insert(_ context.Context, trade persistence.ClosedTrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	trade.ID = r.nextID
	r.trades = append(r.trades, trade)
	return nil
}

func (r *ClosedTradeRepo) RecentForDay(_ context.Context, day time.Time) ([]persistence.ClosedTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	var out []persistence.ClosedTrade
	for i := len(r.trades) - 1; i >= 0; i-- {
		t := r.trades[i]
		if !t.ClosedAt.Before(dayStart) && t.ClosedAt.Before(dayEnd) {
			out = append(out, t)
		}
	}
	return out, nil
}

// NewRepository wires every in-memory fake into a persistence.Repository,
// for MOCK_MODE and PG_ENABLED=false.
func NewRepository() *persistence.Repository {
	return &persistence.Repository{
		Signals:      NewSignalRepo(),
		Approvals:    NewHITLRepo(),
		Audit:        NewAuditRepo(),
		Guardian:     NewGuardianRepo(),
		Trust:        NewTrustRepo(),
		ClosedTrades: NewClosedTradeRepo(),
	}
}
