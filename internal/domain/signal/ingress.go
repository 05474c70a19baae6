package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/money"
)

// Repo is the persistence contract for signals. Insert must be idempotent
// keyed on (source, external_id): a second call with the same pair returns
// the original correlation id and inserted=false rather than erroring or
// writing a second row.
type Repo interface {
	Insert(ctx context.Context, sig Signal) (correlationID uuid.UUID, inserted bool, err error)
}

// AcceptResult is returned from Accept on success.
type AcceptResult struct {
	CorrelationID uuid.UUID
	Duplicate     bool
	Signal        Signal
}

// wireSignal mirrors the webhook JSON body. Price is kept as json.RawMessage
// so Accept can reject a bare JSON number (float token) before it ever
// reaches a float64, and a quoted string is parsed as an exact decimal.
type wireSignal struct {
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Price      json.RawMessage `json:"price"`
	ExternalID string          `json:"external_id"`
}

// Gateway is the L1 ingress component. Callers construct one per (source,
// secret) pair — typically one per external signal producer.
type Gateway struct {
	source string
	secret []byte
	repo   Repo
	now    func() time.Time
}

// NewGateway builds an ingress Gateway for a single signal source.
func NewGateway(source string, secret []byte, repo Repo) *Gateway {
	return &Gateway{source: source, secret: secret, repo: repo, now: time.Now}
}

// Accept verifies raw against sigHex BEFORE any parsing, then parses and
// idempotently persists the resulting Signal. The 50ms ack budget described
// in the spec is a caller concern: Accept itself does only the verify,
// parse, and single insert — no downstream pipeline work.
func (g *Gateway) Accept(ctx context.Context, raw []byte, sigHex string) (AcceptResult, error) {
	if !money.VerifyHMAC(raw, sigHex, g.secret) {
		return AcceptResult{}, apperr.New(apperr.CodeBadSignature, "webhook signature verification failed")
	}

	var wire wireSignal
	if err := json.Unmarshal(raw, &wire); err != nil {
		return AcceptResult{}, fmt.Errorf("ingress: malformed body: %w", err)
	}

	side := Side(wire.Side)
	if !side.Valid() {
		return AcceptResult{}, fmt.Errorf("ingress: invalid side %q", wire.Side)
	}
	if wire.Symbol == "" {
		return AcceptResult{}, fmt.Errorf("ingress: missing symbol")
	}
	if wire.ExternalID == "" {
		return AcceptResult{}, fmt.Errorf("ingress: missing external_id")
	}

	price, err := parseDecimalField(wire.Price, money.ScalePrice)
	if err != nil {
		return AcceptResult{}, apperr.Wrap(apperr.CodeFloatToken, "price field must be a decimal string or integer", err)
	}

	sig := Signal{
		CorrelationID: uuid.New(),
		Source:        g.source,
		ExternalID:    wire.ExternalID,
		Symbol:        wire.Symbol,
		Side:          side,
		Price:         money.Price{Decimal: price},
		ReceivedAt:    g.now().UTC(),
	}

	corrID, inserted, err := g.repo.Insert(ctx, sig)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("ingress: persist signal: %w", err)
	}

	return AcceptResult{CorrelationID: corrID, Duplicate: !inserted, Signal: sig}, nil
}

// parseDecimalField accepts a JSON string ("1850000.00") or a JSON integer
// literal (185) as a financial field. A JSON number containing '.' or an
// exponent — i.e. a float token — is rejected per AUD-001, matching the
// spec's requirement that floats never enter a decimal field.
func parseDecimalField(raw json.RawMessage, scale uint8) (money.Decimal, error) {
	trimmed := string(raw)
	if len(trimmed) == 0 {
		return money.Decimal{}, fmt.Errorf("empty financial field")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return money.Decimal{}, err
		}
		return money.NewFromString(s, scale)
	}

	for _, r := range trimmed {
		if r == '.' || r == 'e' || r == 'E' {
			return money.Decimal{}, fmt.Errorf("float token %q not allowed in financial field", trimmed)
		}
	}
	return money.NewFromString(trimmed, scale)
}
