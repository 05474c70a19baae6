package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sentinel/internal/persistence"
)

// AuditRepo is an append-only log; rows are never updated or deleted.
type AuditRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewAuditRepo(db *sqlx.DB, timeout time.Duration) *AuditRepo {
	return &AuditRepo{db: db, timeout: timeout}
}

func (r *AuditRepo) Append(ctx context.Context, rec persistence.AuditRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit context: %w", err)
	}

	const q = `
		INSERT INTO audit_log
			(correlation_id, actor, action, result, before_hash, after_hash, "timestamp", context)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = r.db.ExecContext(ctx, q,
		rec.CorrelationID, rec.Actor, rec.Action, rec.Result,
		rec.BeforeHash, rec.AfterHash, rec.Timestamp, ctxJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: append audit record: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListByCorrelation(ctx context.Context, corrID uuid.UUID) ([]persistence.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		SELECT id, correlation_id, actor, action, result, before_hash, after_hash, "timestamp", context
		FROM audit_log WHERE correlation_id = $1 ORDER BY id ASC`

	rows, err := r.db.QueryxContext(ctx, q, corrID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit records: %w", err)
	}
	defer rows.Close()

	var out []persistence.AuditRecord
	for rows.Next() {
		var (
			rec      persistence.AuditRecord
			ctxBytes []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.CorrelationID, &rec.Actor, &rec.Action, &rec.Result,
			&rec.BeforeHash, &rec.AfterHash, &rec.Timestamp, &ctxBytes,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan audit record: %w", err)
		}
		if len(ctxBytes) > 0 {
			if err := json.Unmarshal(ctxBytes, &rec.Context); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit context: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
