package hitl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/domain/guardian"
	"github.com/sawpanic/sentinel/internal/money"
)

// DefaultTTLSeconds and DefaultSlippageMaxPercent are the spec's defaults
// for HITL_TIMEOUT_SECONDS and HITL_SLIPPAGE_MAX_PERCENT.
const DefaultTTLSeconds = 300

// DefaultSlippageMaxPercent is a fraction (0.0050 == 0.5%), matching the
// Percent convention used throughout internal/domain (guardian, breaker,
// risk): never a raw percentage number.
var DefaultSlippageMaxPercent = money.MustFromString("0.0050", money.ScalePercent)

// Repo is the persistence contract for ApprovalRequest rows. Insert and
// CompareAndSwapStatus are the gateway's only write paths, keeping every
// mutation conditional on the prior status so a logical request is never
// visible in two states at once.
type Repo interface {
	Insert(ctx context.Context, req ApprovalRequest) error
	Get(ctx context.Context, tradeID string) (*ApprovalRequest, error)
	// CompareAndSwapStatus persists updated only if the stored row's status
	// still equals expected; it reports false (no error) on a lost race.
	CompareAndSwapStatus(ctx context.Context, tradeID string, expected Status, updated ApprovalRequest) (bool, error)
	// ListNonTerminal returns every row whose status is neither REJECTED
	// nor SETTLED, ordered by ExpiresAt ascending.
	ListNonTerminal(ctx context.Context) ([]ApprovalRequest, error)
}

// PriceFeed is the market-data collaborator the gateway consults at create
// time for the price/bid/ask/spread/latency snapshot. Its correctness is
// out of scope; only this contract is.
type PriceFeed interface {
	Snapshot(ctx context.Context, symbol string) (PriceSnapshot, error)
}

// Config is the frozen subset of environment configuration the gateway
// needs, computed once at startup.
type Config struct {
	Enabled            bool
	TTLSeconds         int
	SlippageMaxPercent money.Percent
	AllowedOperators   map[string]bool
}

// CreateResult is returned from Create.
type CreateResult struct {
	Request ApprovalRequest
}

// DecideResult is returned from Decide.
type DecideResult struct {
	Request ApprovalRequest
}

// RecoveryReport is returned from RecoverOnStartup.
type RecoveryReport struct {
	Recovered      []string
	RejectedCorrupt []string
	RejectedExpired []string
}

// Gateway is the L7 component. It is the exclusive mutator of
// ApprovalRequest state; every other component reads through it.
type Gateway struct {
	repo     Repo
	feed     PriceFeed
	guard    *guardian.Guardian
	audit    AuditFunc
	pub      Publisher
	cfg      Config
	now      func() time.Time
}

// AuditFunc writes an audit record for a single HITL transition. before/
// after are row hashes; context carries free-form decision detail.
type AuditFunc func(ctx context.Context, corrID uuid.UUID, action, result, beforeHash, afterHash string, fields map[string]interface{}) error

// New builds a Gateway. pub may be hitl.NoopPublisher{} if no real-time
// transport is wired.
func New(repo Repo, feed PriceFeed, guard *guardian.Guardian, audit AuditFunc, pub Publisher, cfg Config) *Gateway {
	if pub == nil {
		pub = NoopPublisher{}
	}
	return &Gateway{repo: repo, feed: feed, guard: guard, audit: audit, pub: pub, cfg: cfg, now: time.Now}
}

func rowHash(req ApprovalRequest) (string, error) {
	return money.RowHash(req.fields())
}

// Create opens a new approval request for (symbol, side, qty) at
// requestPrice. When HITL is disabled, it auto-produces a terminal APPROVED
// record with decision_channel SYSTEM — Guardian is still consulted first.
func (g *Gateway) Create(ctx context.Context, symbol, side string, qty money.Decimal, requestPrice money.Price) (CreateResult, error) {
	corrID := uuid.New()

	if g.guard.IsLocked() {
		return CreateResult{}, apperr.New(apperr.CodeGuardianLocked, "guardian locked: refusing to create approval request")
	}

	ttl := g.cfg.TTLSeconds
	if ttl <= 0 {
		ttl = DefaultTTLSeconds
	}
	now := g.now().UTC()

	snap := PriceSnapshot{Price: requestPrice}
	if g.feed != nil {
		if s, err := g.feed.Snapshot(ctx, symbol); err == nil {
			snap = s
		}
	}

	req := ApprovalRequest{
		CorrelationID: corrID,
		TradeID:       corrID.String(),
		Symbol:        symbol,
		Side:          side,
		Qty:           qty,
		RequestPrice:  requestPrice,
		Snapshot:      snap,
		TTLSeconds:    ttl,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(ttl) * time.Second),
	}

	if !g.cfg.Enabled {
		req.Status = StatusApproved
		req.DecisionChannel = ChannelSystem
		req.Reason = ReasonHITLDisabled
		decided := now
		req.DecidedAt = &decided
	} else {
		req.Status = StatusAwaitingApproval
	}

	hash, err := rowHash(req)
	if err != nil {
		return CreateResult{}, fmt.Errorf("hitl: hash create row: %w", err)
	}
	req.RowHash = hash

	if err := g.repo.Insert(ctx, req); err != nil {
		return CreateResult{}, fmt.Errorf("hitl: insert request: %w", err)
	}

	if g.audit != nil {
		_ = g.audit(ctx, corrID, "CREATE", "OK", "", hash, req.fields())
	}

	if !g.cfg.Enabled {
		g.pub.Publish(Event{Type: EventAutoApproved, Request: req})
	} else {
		g.pub.Publish(Event{Type: EventCreated, Request: req})
	}

	return CreateResult{Request: req}, nil
}

// Decision is the operator's intent passed to Decide.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Decide applies an operator decision to trade_id. Sequence matches §4.7:
// operator whitelist, hash verification, Guardian re-check, slippage guard
// (approve only), terminal status write with audit.
func (g *Gateway) Decide(ctx context.Context, tradeID, operatorID string, decision Decision, currentPrice money.Price, reason string) (DecideResult, error) {
	if !g.cfg.AllowedOperators[operatorID] {
		return DecideResult{}, apperr.New(apperr.CodeOperatorNotAllowed, "operator not in HITL_ALLOWED_OPERATORS")
	}

	req, err := g.repo.Get(ctx, tradeID)
	if err != nil {
		return DecideResult{}, fmt.Errorf("hitl: load request: %w", err)
	}
	if req == nil {
		return DecideResult{}, fmt.Errorf("hitl: no such request %q", tradeID)
	}

	beforeHash, err := rowHash(*req)
	if err != nil {
		return DecideResult{}, fmt.Errorf("hitl: hash current row: %w", err)
	}
	if beforeHash != req.RowHash {
		return DecideResult{}, apperr.New(apperr.CodeHashMismatch, "row hash mismatch on decide")
	}

	if req.Status != StatusAwaitingApproval {
		return DecideResult{}, apperr.New(apperr.CodeInvalidTransition, fmt.Sprintf("cannot decide request in status %s", req.Status))
	}

	if g.guard.IsLocked() {
		return DecideResult{}, apperr.New(apperr.CodeGuardianLocked, "guardian locked: refusing decision")
	}

	updated := *req
	now := g.now().UTC()
	updated.DecidedAt = &now
	updated.OperatorID = operatorID

	switch decision {
	case DecisionApprove:
		threshold := g.cfg.SlippageMaxPercent
		if threshold.Decimal.IsZero() {
			threshold = money.Percent{Decimal: DefaultSlippageMaxPercent}
		}
		deviation := currentPrice.Decimal.Sub(req.RequestPrice.Decimal).Abs().
			Div(req.RequestPrice.Decimal, money.ScalePercent)
		if deviation.GreaterThan(threshold.Decimal) {
			updated.Status = StatusRejected
			updated.Reason = ReasonSlippageExceeded
			updated.DecisionChannel = ChannelAPI
			if err := g.finishTransition(ctx, req.Status, &updated, "DECIDE", "REFUSED"); err != nil {
				return DecideResult{}, err
			}
			g.pub.Publish(Event{Type: EventDecided, Request: updated})
			return DecideResult{Request: updated}, apperr.New(apperr.CodeSlippageExceeded, "slippage exceeds HITL_SLIPPAGE_MAX_PERCENT")
		}
		updated.Status = StatusApproved
		updated.DecisionChannel = ChannelAPI
		updated.Reason = ""
	case DecisionReject:
		updated.Status = StatusRejected
		updated.DecisionChannel = ChannelAPI
		if reason == "" {
			reason = ReasonOperatorRejected
		}
		updated.Reason = reason
	default:
		return DecideResult{}, fmt.Errorf("hitl: unknown decision %q", decision)
	}

	if err := g.finishTransition(ctx, req.Status, &updated, "DECIDE", "OK"); err != nil {
		return DecideResult{}, err
	}

	g.pub.Publish(Event{Type: EventDecided, Request: updated})
	return DecideResult{Request: updated}, nil
}

// Transition is the generic state-change entry point used by the order
// manager and trade-close handler to advance an APPROVED request through
// FILLED -> CLOSED -> SETTLED. It enforces VALID_TRANSITIONS like every
// other mutation.
func (g *Gateway) Transition(ctx context.Context, tradeID string, to Status) (ApprovalRequest, error) {
	req, err := g.repo.Get(ctx, tradeID)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("hitl: load request: %w", err)
	}
	if req == nil {
		return ApprovalRequest{}, fmt.Errorf("hitl: no such request %q", tradeID)
	}
	if !IsValidTransition(req.Status, to) {
		return ApprovalRequest{}, apperr.New(apperr.CodeInvalidTransition, fmt.Sprintf("invalid transition %s -> %s", req.Status, to))
	}

	updated := *req
	updated.Status = to
	if err := g.finishTransition(ctx, req.Status, &updated, "TRANSITION", "OK"); err != nil {
		return ApprovalRequest{}, err
	}
	return updated, nil
}

// finishTransition recomputes the row hash, performs the conditional
// write, and writes the audit entry. It never mutates *req in the caller's
// scope beyond setting RowHash on updated.
func (g *Gateway) finishTransition(ctx context.Context, from Status, updated *ApprovalRequest, action, result string) error {
	beforeHash := updated.RowHash
	hash, err := rowHash(*updated)
	if err != nil {
		return fmt.Errorf("hitl: hash updated row: %w", err)
	}
	updated.RowHash = hash

	ok, err := g.repo.CompareAndSwapStatus(ctx, updated.TradeID, from, *updated)
	if err != nil {
		return fmt.Errorf("hitl: persist transition: %w", err)
	}
	if !ok {
		return apperr.New(apperr.CodeInvalidTransition, "lost race: request status changed concurrently")
	}

	if g.audit != nil {
		_ = g.audit(ctx, updated.CorrelationID, action, result, beforeHash, hash, updated.fields())
	}
	return nil
}

// RecoverOnStartup scans every AWAITING_APPROVAL row and resolves it per
// §4.7: a tampered hash rejects with HASH_MISMATCH, an elapsed TTL rejects
// with HITL_TIMEOUT, otherwise the request is recovered and its expiry
// timer is the caller's responsibility to re-arm (see ExpiryWorker).
func (g *Gateway) RecoverOnStartup(ctx context.Context) (RecoveryReport, error) {
	rows, err := g.repo.ListNonTerminal(ctx)
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("hitl: list non-terminal rows: %w", err)
	}

	var report RecoveryReport
	now := g.now().UTC()

	for _, req := range rows {
		if req.Status != StatusAwaitingApproval {
			continue
		}

		computed, err := rowHash(req)
		if err != nil || computed != req.RowHash {
			updated := req
			updated.Status = StatusRejected
			updated.Reason = ReasonHashMismatch
			updated.DecisionChannel = ChannelSystem
			if e := g.finishTransition(ctx, req.Status, &updated, "RECOVER", "REFUSED"); e == nil {
				report.RejectedCorrupt = append(report.RejectedCorrupt, req.TradeID)
			}
			continue
		}

		if now.After(req.ExpiresAt) || now.Equal(req.ExpiresAt) {
			updated := req
			updated.Status = StatusRejected
			updated.Reason = ReasonHITLTimeout
			updated.DecisionChannel = ChannelSystem
			if e := g.finishTransition(ctx, req.Status, &updated, "RECOVER", "OK"); e == nil {
				report.RejectedExpired = append(report.RejectedExpired, req.TradeID)
			}
			continue
		}

		report.Recovered = append(report.Recovered, req.TradeID)
		g.pub.Publish(Event{Type: EventRecovered, Request: req})
	}

	return report, nil
}

// Pending returns non-terminal requests ordered by ExpiresAt ascending,
// verifying each row's hash and omitting (and reporting) mismatches rather
// than returning a tampered record to a caller.
func (g *Gateway) Pending(ctx context.Context) ([]ApprovalRequest, []string, error) {
	rows, err := g.repo.ListNonTerminal(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("hitl: list non-terminal rows: %w", err)
	}
	var valid []ApprovalRequest
	var mismatched []string
	for _, req := range rows {
		computed, err := rowHash(req)
		if err != nil || computed != req.RowHash {
			mismatched = append(mismatched, req.TradeID)
			continue
		}
		valid = append(valid, req)
	}
	return valid, mismatched, nil
}

// OnGuardianLock should be registered with guardian.Guardian.OnLock so
// every pending request is rejected before the orchestrator accepts the
// next signal (the synchronous lock-callback ordering guarantee in §5).
func (g *Gateway) OnGuardianLock(_ guardian.Lock) {
	ctx := context.Background()
	rows, err := g.repo.ListNonTerminal(ctx)
	if err != nil {
		return
	}
	for _, req := range rows {
		if req.Status != StatusAwaitingApproval {
			continue
		}
		updated := req
		updated.Status = StatusRejected
		updated.Reason = ReasonGuardianLock
		updated.DecisionChannel = ChannelSystem
		_ = g.finishTransition(ctx, req.Status, &updated, "GUARDIAN_CASCADE", "OK")
	}
}

// ExpiryWorker scans for AWAITING_APPROVAL rows past their expiry at the
// given interval (the spec requires interval <= ttl/10) and rejects them
// with HITL_TIMEOUT. It runs until ctx is cancelled.
func (g *Gateway) ExpiryWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.expireDue(ctx)
		}
	}
}

func (g *Gateway) expireDue(ctx context.Context) {
	rows, err := g.repo.ListNonTerminal(ctx)
	if err != nil {
		return
	}
	now := g.now().UTC()
	for _, req := range rows {
		if req.Status != StatusAwaitingApproval || now.Before(req.ExpiresAt) {
			continue
		}
		updated := req
		updated.Status = StatusRejected
		updated.Reason = ReasonHITLTimeout
		updated.DecisionChannel = ChannelSystem
		if err := g.finishTransition(ctx, req.Status, &updated, "EXPIRE", "OK"); err == nil {
			g.pub.Publish(Event{Type: EventExpired, Request: updated})
		}
	}
}
