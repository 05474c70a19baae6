package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sentinel/internal/domain/guardian"
	"github.com/sawpanic/sentinel/internal/money"
)

// GuardianRepo persists the single current hard-stop lock row. There is at
// most one active lock at a time; Save upserts it, Clear deletes it.
type GuardianRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewGuardianRepo(db *sqlx.DB, timeout time.Duration) *GuardianRepo {
	return &GuardianRepo{db: db, timeout: timeout}
}

type guardianLockRow struct {
	LockID        uuid.UUID `db:"lock_id"`
	LockedAt      time.Time `db:"locked_at"`
	Reason        string    `db:"reason"`
	DailyLossZAR  string    `db:"daily_loss_zar"`
	DailyLossPct  string    `db:"daily_loss_pct"`
	CorrelationID uuid.UUID `db:"correlation_id"`
}

func (r *GuardianRepo) Save(ctx context.Context, lock guardian.Lock) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		INSERT INTO guardian_lock (id, lock_id, locked_at, reason, daily_loss_zar, daily_loss_pct, correlation_id)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			lock_id = EXCLUDED.lock_id,
			locked_at = EXCLUDED.locked_at,
			reason = EXCLUDED.reason,
			daily_loss_zar = EXCLUDED.daily_loss_zar,
			daily_loss_pct = EXCLUDED.daily_loss_pct,
			correlation_id = EXCLUDED.correlation_id`

	_, err := r.db.ExecContext(ctx, q,
		lock.LockID, lock.LockedAt, string(lock.Reason),
		lock.DailyLossZAR.Decimal.String(), lock.DailyLossPct.Decimal.String(), lock.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("postgres: save guardian lock: %w", err)
	}
	return nil
}

func (r *GuardianRepo) Load(ctx context.Context) (*guardian.Lock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		SELECT lock_id, locked_at, reason, daily_loss_zar, daily_loss_pct, correlation_id
		FROM guardian_lock WHERE id = 1`

	var row guardianLockRow
	err := r.db.QueryRowxContext(ctx, q).Scan(
		&row.LockID, &row.LockedAt, &row.Reason, &row.DailyLossZAR, &row.DailyLossPct, &row.CorrelationID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load guardian lock: %w", err)
	}

	lossZAR, err := money.NewFromString(row.DailyLossZAR, money.ScaleZAR)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse daily_loss_zar: %w", err)
	}
	lossPct, err := money.NewFromString(row.DailyLossPct, money.ScalePercent)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse daily_loss_pct: %w", err)
	}

	return &guardian.Lock{
		LockID:        row.LockID,
		LockedAt:      row.LockedAt,
		Reason:        guardian.Reason(row.Reason),
		DailyLossZAR:  money.ZAR{Decimal: lossZAR},
		DailyLossPct:  money.Percent{Decimal: lossPct},
		CorrelationID: row.CorrelationID,
	}, nil
}

func (r *GuardianRepo) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM guardian_lock WHERE id = 1`); err != nil {
		return fmt.Errorf("postgres: clear guardian lock: %w", err)
	}
	return nil
}
