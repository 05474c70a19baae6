// Package signal implements the ingress leaf (L1): HMAC verification over
// raw bytes, strict decimal parsing, and idempotent persistence of the
// resulting Signal. See internal/orchestrator for how this feeds the
// permission policy.
package signal

import (
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/money"
)

// Side is the direction of a proposed trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Signal is the immutable record produced by a verified webhook call.
// Uniqueness is enforced on (Source, ExternalID): a duplicate delivery
// resolves to the same CorrelationID without a second insert.
type Signal struct {
	CorrelationID uuid.UUID
	Source        string
	ExternalID    string
	Symbol        string
	Side          Side
	Price         money.Price
	ReceivedAt    time.Time
}
