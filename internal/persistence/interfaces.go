// Package persistence defines the repository contracts the domain layer
// depends on. Concrete implementations live in internal/persistence/postgres
// and internal/persistence/memory; domain packages depend only on these
// interfaces (declared alongside each domain package) so tests can swap in
// the in-memory fakes without pulling in database drivers.
package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/domain/guardian"
	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/domain/rgi"
	"github.com/sawpanic/sentinel/internal/domain/signal"
)

// TimeRange bounds a query window, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// AuditRecord is an append-only entry linked to a correlation id. Result is
// a short outcome tag ("OK", "REFUSED", "ERROR"); Context carries free-form
// decision detail serialized by the caller.
type AuditRecord struct {
	ID            int64
	CorrelationID uuid.UUID
	Actor         string
	Action        string
	Result        string
	BeforeHash    string
	AfterHash     string
	Timestamp     time.Time
	Context       map[string]interface{}
}

// ClosedTrade is the row the circuit breaker derives CircuitBreakerState
// from and the trade-close handler (tradeclose.Handler) writes when a trade
// closes.
type ClosedTrade struct {
	ID            int64
	CorrelationID uuid.UUID
	Symbol        string
	Side          string
	EntryPrice    string // decimal string, scale 8
	ExitPrice     string
	Qty           string
	PnLZAR        string // decimal string, scale 2
	PnLPct        string // decimal string, scale 4
	Outcome       string // WIN, LOSS, BREAKEVEN
	ClosedAt      time.Time
}

// SignalRepo persists ingress signals idempotently on (source, external_id).
type SignalRepo = signal.Repo

// ApprovalRepo persists HITL approval requests with row-hash integrity.
type ApprovalRepo = hitl.Repo

// GuardianRepo persists the durable lock record Guardian rehydrates from.
type GuardianRepo = guardian.Repo

// TrustRepo persists RGI trust state per (fingerprint, regime).
type TrustRepo = rgi.Repo

// AuditRepo is the append-only audit log every safety component writes to.
type AuditRepo interface {
	Append(ctx context.Context, rec AuditRecord) error
	ListByCorrelation(ctx context.Context, corrID uuid.UUID) ([]AuditRecord, error)
}

// ClosedTradeRepo backs the circuit breaker's derived view and is written
// to by the trade-close handler on every closed trade.
type ClosedTradeRepo interface {
	Insert(ctx context.Context, trade ClosedTrade) error
	// RecentForDay returns closed trades for the UTC day containing `day`,
	// most recent first.
	RecentForDay(ctx context.Context, day time.Time) ([]ClosedTrade, error)
}

// HealthCheck reports repository connectivity for the orchestrator's
// startup and liveness checks.
type HealthCheck struct {
	Healthy        bool
	Errors         []string
	ConnectionPool map[string]int
	LastCheck      time.Time
	ResponseTimeMS int64
}

// RepositoryHealth is implemented by the db connection manager.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}

// Repository aggregates every repo the orchestrator wires into components.
type Repository struct {
	Signals      SignalRepo
	Approvals    ApprovalRepo
	Audit        AuditRepo
	Guardian     GuardianRepo
	Trust        TrustRepo
	ClosedTrades ClosedTradeRepo
}
