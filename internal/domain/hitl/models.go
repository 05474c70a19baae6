// Package hitl implements the human-in-the-loop approval gateway (L7): the
// state machine that holds eligible trades until a whitelisted human
// approves, rejects, or lets the request expire, writing a hash-verified,
// append-only audit trail and emitting real-time events throughout.
package hitl

import (
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/money"
)

// Status is a state in the approval lifecycle. The gateway owns every
// mutation of an ApprovalRequest's Status; no other component writes it.
type Status string

const (
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	// StatusExpired is declared for data-model completeness; the timeout
	// path in practice writes StatusRejected with ReasonHITLTimeout (see
	// ExpiryWorker and RecoverOnStartup in gateway.go, and DESIGN.md), matching §4.7's own operation
	// text and the worked scenarios.
	StatusExpired Status = "EXPIRED"
	StatusFilled  Status = "FILLED"
	StatusClosed  Status = "CLOSED"
	StatusSettled Status = "SETTLED"
)

// validTransitions enumerates VALID_TRANSITIONS; any (from,to) pair not
// present here fails SEC-030.
var validTransitions = map[Status]map[Status]bool{
	StatusAwaitingApproval: {StatusApproved: true, StatusRejected: true},
	StatusApproved:         {StatusFilled: true},
	StatusFilled:           {StatusClosed: true},
	StatusClosed:           {StatusSettled: true},
}

// IsValidTransition reports whether (from, to) is a legal state change.
func IsValidTransition(from, to Status) bool {
	return validTransitions[from][to]
}

// Terminal reports whether status has no outgoing transitions.
func Terminal(s Status) bool {
	return s == StatusRejected || s == StatusSettled
}

// DecisionChannel is who/what produced a terminal decision.
type DecisionChannel string

const (
	ChannelAPI     DecisionChannel = "API"
	ChannelDiscord DecisionChannel = "DISCORD"
	ChannelSystem  DecisionChannel = "SYSTEM"
)

// Reason codes written into ApprovalRequest.Reason on terminal transitions.
const (
	ReasonSlippageExceeded = "SLIPPAGE_EXCEEDED"
	ReasonHITLTimeout      = "HITL_TIMEOUT"
	ReasonGuardianLock     = "GUARDIAN_LOCK"
	ReasonHITLDisabled     = "HITL_DISABLED"
	ReasonHashMismatch     = "HASH_MISMATCH"
	ReasonOperatorRejected = "OPERATOR_REJECTED"
)

// PriceSnapshot is captured once at create and used by the slippage guard
// at decide time.
type PriceSnapshot struct {
	Price     money.Price
	Bid       money.Price
	Ask       money.Price
	SpreadPct money.Percent
	LatencyMS int64
}

// ApprovalRequest is the HITL record. RowHash covers every field below
// except Snapshot and RowHash itself, computed at create and recomputed on
// every transition; a change to the stored Snapshot is not detected.
type ApprovalRequest struct {
	CorrelationID   uuid.UUID
	TradeID         string
	Symbol          string
	Side            string
	Qty             money.Decimal
	RequestPrice    money.Price
	Snapshot        PriceSnapshot
	TTLSeconds      int
	Status          Status
	CreatedAt       time.Time
	ExpiresAt       time.Time
	DecidedAt       *time.Time
	DecisionChannel DecisionChannel
	OperatorID      string
	Reason          string
	RowHash         string
}

// fields returns the canonical field map row-hashing is computed over —
// every persisted field except Snapshot and RowHash itself.
func (r ApprovalRequest) fields() map[string]interface{} {
	m := map[string]interface{}{
		"correlation_id":   r.CorrelationID.String(),
		"trade_id":         r.TradeID,
		"symbol":           r.Symbol,
		"side":             r.Side,
		"qty":              r.Qty,
		"request_price":    r.RequestPrice,
		"ttl_seconds":      r.TTLSeconds,
		"status":           string(r.Status),
		"created_at":       r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at":       r.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"decision_channel": string(r.DecisionChannel),
		"operator_id":      r.OperatorID,
		"reason":           r.Reason,
	}
	if r.DecidedAt != nil {
		m["decided_at"] = r.DecidedAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}
