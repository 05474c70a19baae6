// Package postgres implements every persistence.* repository contract
// against PostgreSQL via jmoiron/sqlx and lib/pq, following the teacher's
// own sqlx query style (QueryRowxContext/QueryxContext, pq.Error 23505 for
// duplicate-key detection) from its now-removed trades_repo.go.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/money"
)

const pgUniqueViolation = "23505"

// SignalRepo persists accepted webhook signals, enforcing idempotency on
// (source, external_id) via a unique index and a duplicate-key catch.
type SignalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewSignalRepo(db *sqlx.DB, timeout time.Duration) *SignalRepo {
	return &SignalRepo{db: db, timeout: timeout}
}

type signalRow struct {
	CorrelationID uuid.UUID `db:"correlation_id"`
	Source        string    `db:"source"`
	ExternalID    string    `db:"external_id"`
	Symbol        string    `db:"symbol"`
	Side          string    `db:"side"`
	Price         string    `db:"price"`
	ReceivedAt    time.Time `db:"received_at"`
}

// Insert is idempotent on (source, external_id): a second delivery of the
// same pair returns the original correlation id with inserted=false rather
// than erroring or writing a second row.
func (r *SignalRepo) Insert(ctx context.Context, sig signal.Signal) (uuid.UUID, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		INSERT INTO signals (correlation_id, source, external_id, symbol, side, price, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, external_id) DO NOTHING
		RETURNING correlation_id`

	var corrID uuid.UUID
	err := r.db.QueryRowxContext(ctx, q,
		sig.CorrelationID, sig.Source, sig.ExternalID, sig.Symbol, string(sig.Side),
		sig.Price.Decimal.String(), sig.ReceivedAt,
	).Scan(&corrID)

	if errors.Is(err, sql.ErrNoRows) {
		existing, lookupErr := r.lookupExisting(ctx, sig.Source, sig.ExternalID)
		if lookupErr != nil {
			return uuid.Nil, false, lookupErr
		}
		return existing, false, nil
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			existing, lookupErr := r.lookupExisting(ctx, sig.Source, sig.ExternalID)
			if lookupErr != nil {
				return uuid.Nil, false, lookupErr
			}
			return existing, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("postgres: insert signal: %w", err)
	}

	return corrID, true, nil
}

func (r *SignalRepo) lookupExisting(ctx context.Context, source, externalID string) (uuid.UUID, error) {
	const q = `SELECT correlation_id FROM signals WHERE source = $1 AND external_id = $2`
	var corrID uuid.UUID
	if err := r.db.QueryRowxContext(ctx, q, source, externalID).Scan(&corrID); err != nil {
		return uuid.Nil, fmt.Errorf("postgres: lookup existing signal: %w", err)
	}
	return corrID, nil
}

func scanSignal(row signalRow) (signal.Signal, error) {
	price, err := money.NewFromString(row.Price, money.ScalePrice)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("postgres: parse signal price: %w", err)
	}
	return signal.Signal{
		CorrelationID: row.CorrelationID,
		Source:        row.Source,
		ExternalID:    row.ExternalID,
		Symbol:        row.Symbol,
		Side:          signal.Side(row.Side),
		Price:         money.Price{Decimal: price},
		ReceivedAt:    row.ReceivedAt,
	}, nil
}
