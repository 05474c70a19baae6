package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sentinel/internal/domain/rgi"
	"github.com/sawpanic/sentinel/internal/money"
)

// TrustRepo loads a learned trust probability for a (strategy, regime)
// pair. Absence of a row is not an error — rgi.RGI already fails safe to
// neutral on a nil, error-free result.
type TrustRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewTrustRepo(db *sqlx.DB, timeout time.Duration) *TrustRepo {
	return &TrustRepo{db: db, timeout: timeout}
}

func (r *TrustRepo) Load(ctx context.Context, fingerprint, regimeTag string) (*rgi.TrustState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		SELECT strategy_fingerprint, regime_tag, trust_probability, training_sample_count, updated_at
		FROM rgi_trust_state WHERE strategy_fingerprint = $1 AND regime_tag = $2`

	var (
		prob      string
		state     rgi.TrustState
	)
	err := r.db.QueryRowxContext(ctx, q, fingerprint, regimeTag).Scan(
		&state.StrategyFingerprint, &state.RegimeTag, &prob, &state.TrainingSampleCount, &state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load trust state: %w", err)
	}

	d, err := money.NewFromString(prob, money.ScaleProb)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse trust_probability: %w", err)
	}
	state.TrustProbability = money.Prob{Decimal: d}
	return &state, nil
}
