package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sentinel/internal/persistence"
)

// ClosedTradeRepo is what the headless trading circuit breaker (L3) reads
// to derive its lockout state, and what the trade-close handler writes to
// on every settled trade.
type ClosedTradeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewClosedTradeRepo(db *sqlx.DB, timeout time.Duration) *ClosedTradeRepo {
	return &ClosedTradeRepo{db: db, timeout: timeout}
}

func (r *ClosedTradeRepo) Insert(ctx context.Context, trade persistence.ClosedTrade) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		INSERT INTO closed_trades
			(correlation_id, symbol, side, entry_price, exit_price, qty, pnl_zar, pnl_pct, outcome, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := r.db.ExecContext(ctx, q,
		trade.CorrelationID, trade.Symbol, trade.Side,
		trade.EntryPrice, trade.ExitPrice, trade.Qty,
		trade.PnLZAR, trade.PnLPct, trade.Outcome, trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed trade: %w", err)
	}
	return nil
}

func (r *ClosedTradeRepo) RecentForDay(ctx context.Context, day time.Time) ([]persistence.ClosedTrade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		SELECT id, correlation_id, symbol, side, entry_price, exit_price, qty, pnl_zar, pnl_pct, outcome, closed_at
		FROM closed_trades
		WHERE closed_at >= $1 AND closed_at < $1 + interval '1 day'
		ORDER BY closed_at DESC`

	rows, err := r.db.QueryxContext(ctx, q, day)
	if err != nil {
		return nil, fmt.Errorf("postgres: query closed trades for day: %w", err)
	}
	defer rows.Close()

	var out []persistence.ClosedTrade
	for rows.Next() {
		var t persistence.ClosedTrade
		if err := rows.Scan(
			&t.ID, &t.CorrelationID, &t.Symbol, &t.Side,
			&t.EntryPrice, &t.ExitPrice, &t.Qty, &t.PnLZAR, &t.PnLPct, &t.Outcome, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
