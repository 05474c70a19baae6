package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/money"
)

// HITLRepo persists ApprovalRequest rows. Status changes always go through
// CompareAndSwapStatus so a lost race never overwrites a concurrent
// transition (SEC-030's ordering guarantee, enforced here at the SQL level
// with a WHERE status = $expected).
type HITLRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewHITLRepo(db *sqlx.DB, timeout time.Duration) *HITLRepo {
	return &HITLRepo{db: db, timeout: timeout}
}

type approvalRow struct {
	CorrelationID   uuid.UUID      `db:"correlation_id"`
	TradeID         string         `db:"trade_id"`
	Symbol          string         `db:"symbol"`
	Side            string         `db:"side"`
	Qty             string         `db:"qty"`
	RequestPrice    string         `db:"request_price"`
	Snapshot        []byte         `db:"snapshot"`
	TTLSeconds      int            `db:"ttl_seconds"`
	Status          string         `db:"status"`
	CreatedAt       time.Time      `db:"created_at"`
	ExpiresAt       time.Time      `db:"expires_at"`
	DecidedAt       sql.NullTime   `db:"decided_at"`
	DecisionChannel string         `db:"decision_channel"`
	OperatorID      string         `db:"operator_id"`
	Reason          string         `db:"reason"`
	RowHash         string         `db:"row_hash"`
}

func (r *HITLRepo) Insert(ctx context.Context, req hitl.ApprovalRequest) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snapJSON, err := json.Marshal(req.Snapshot)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}

	const q = `
		INSERT INTO hitl_approvals
			(correlation_id, trade_id, symbol, side, qty, request_price, snapshot,
			 ttl_seconds, status, created_at, expires_at, decided_at,
			 decision_channel, operator_id, reason, row_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err = r.db.ExecContext(ctx, q,
		req.CorrelationID, req.TradeID, req.Symbol, req.Side,
		req.Qty.String(), req.RequestPrice.Decimal.String(), snapJSON,
		req.TTLSeconds, string(req.Status), req.CreatedAt, req.ExpiresAt, nullTime(req.DecidedAt),
		string(req.DecisionChannel), req.OperatorID, req.Reason, req.RowHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert approval request: %w", err)
	}
	return nil
}

func (r *HITLRepo) Get(ctx context.Context, tradeID string) (*hitl.ApprovalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		SELECT correlation_id, trade_id, symbol, side, qty, request_price, snapshot,
		       ttl_seconds, status, created_at, expires_at, decided_at,
		       decision_channel, operator_id, reason, row_hash
		FROM hitl_approvals WHERE trade_id = $1`

	var row approvalRow
	err := r.db.QueryRowxContext(ctx, q, tradeID).Scan(
		&row.CorrelationID, &row.TradeID, &row.Symbol, &row.Side, &row.Qty, &row.RequestPrice, &row.Snapshot,
		&row.TTLSeconds, &row.Status, &row.CreatedAt, &row.ExpiresAt, &row.DecidedAt,
		&row.DecisionChannel, &row.OperatorID, &row.Reason, &row.RowHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get approval request: %w", err)
	}

	req, err := scanApproval(row)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CompareAndSwapStatus persists updated only if the stored row's status
// still equals expected.
func (r *HITLRepo) CompareAndSwapStatus(ctx context.Context, tradeID string, expected hitl.Status, updated hitl.ApprovalRequest) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		UPDATE hitl_approvals SET
			status = $1, decided_at = $2, decision_channel = $3,
			operator_id = $4, reason = $5, row_hash = $6
		WHERE trade_id = $7 AND status = $8`

	res, err := r.db.ExecContext(ctx, q,
		string(updated.Status), nullTime(updated.DecidedAt), string(updated.DecisionChannel),
		updated.OperatorID, updated.Reason, updated.RowHash,
		tradeID, string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: compare-and-swap approval status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *HITLRepo) ListNonTerminal(ctx context.Context) ([]hitl.ApprovalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
		SELECT correlation_id, trade_id, symbol, side, qty, request_price, snapshot,
		       ttl_seconds, status, created_at, expires_at, decided_at,
		       decision_channel, operator_id, reason, row_hash
		FROM hitl_approvals
		WHERE status NOT IN ('REJECTED', 'SETTLED')
		ORDER BY expires_at ASC`

	rows, err := r.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list non-terminal approvals: %w", err)
	}
	defer rows.Close()

	var out []hitl.ApprovalRequest
	for rows.Next() {
		var row approvalRow
		if err := rows.Scan(
			&row.CorrelationID, &row.TradeID, &row.Symbol, &row.Side, &row.Qty, &row.RequestPrice, &row.Snapshot,
			&row.TTLSeconds, &row.Status, &row.CreatedAt, &row.ExpiresAt, &row.DecidedAt,
			&row.DecisionChannel, &row.OperatorID, &row.Reason, &row.RowHash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan approval row: %w", err)
		}
		req, err := scanApproval(row)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanApproval(row approvalRow) (hitl.ApprovalRequest, error) {
	qty, err := money.NewFromString(row.Qty, 8)
	if err != nil {
		return hitl.ApprovalRequest{}, fmt.Errorf("postgres: parse qty: %w", err)
	}
	reqPrice, err := money.NewFromString(row.RequestPrice, money.ScalePrice)
	if err != nil {
		return hitl.ApprovalRequest{}, fmt.Errorf("postgres: parse request_price: %w", err)
	}
	var snap hitl.PriceSnapshot
	if len(row.Snapshot) > 0 {
		if err := json.Unmarshal(row.Snapshot, &snap); err != nil {
			return hitl.ApprovalRequest{}, fmt.Errorf("postgres: unmarshal snapshot: %w", err)
		}
	}

	req := hitl.ApprovalRequest{
		CorrelationID:   row.CorrelationID,
		TradeID:         row.TradeID,
		Symbol:          row.Symbol,
		Side:            row.Side,
		Qty:             qty,
		RequestPrice:    money.Price{Decimal: reqPrice},
		Snapshot:        snap,
		TTLSeconds:      row.TTLSeconds,
		Status:          hitl.Status(row.Status),
		CreatedAt:       row.CreatedAt,
		ExpiresAt:       row.ExpiresAt,
		DecisionChannel: hitl.DecisionChannel(row.DecisionChannel),
		OperatorID:      row.OperatorID,
		Reason:          row.Reason,
		RowHash:         row.RowHash,
	}
	if row.DecidedAt.Valid {
		t := row.DecidedAt.Time
		req.DecidedAt = &t
	}
	return req, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
