package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/pkg/database"
)

// FailedCompensationStore persists the dead-letter queue for
// compensations the Failure Compensation Handler could not apply
// (§4.7), so an operator can inspect and resolve them later.
type FailedCompensationStore struct {
	pool database.TxQuerier
}

// NewFailedCompensationStore constructs a FailedCompensationStore over the pool.
func NewFailedCompensationStore(pool *pgxpool.Pool) *FailedCompensationStore {
	return &FailedCompensationStore{pool: pool}
}

// NewFailedCompensationStoreWithQuerier is the test-seam constructor.
func NewFailedCompensationStoreWithQuerier(q database.TxQuerier) *FailedCompensationStore {
	return &FailedCompensationStore{pool: q}
}

// Insert records a new failed compensation, PENDING by default.
func (s *FailedCompensationStore) Insert(ctx context.Context, fc model.FailedCompensation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failed_compensations
			(id, order_id, user_id, step_name, step_order, error_message, stack_trace, failed_at, retry_count, status, context_snapshot)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		fc.ID, fc.OrderID, fc.UserID, fc.StepName, fc.StepOrder, fc.ErrorMessage, fc.StackTrace,
		fc.FailedAt, fc.RetryCount, model.FailedCompensationPending, fc.ContextSnapshot)
	if err != nil {
		return fmt.Errorf("insert failed compensation: %w", err)
	}
	return nil
}

// MarkResolved marks a DLQ row as operator-resolved.
func (s *FailedCompensationStore) MarkResolved(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE failed_compensations SET status = $1 WHERE id = $2`,
		model.FailedCompensationResolved, id)
	if err != nil {
		return fmt.Errorf("mark failed compensation resolved: %w", err)
	}
	return nil
}

// ListPending returns unresolved DLQ rows for operator review.
func (s *FailedCompensationStore) ListPending(ctx context.Context, limit int) ([]model.FailedCompensation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, user_id, step_name, step_order, error_message, stack_trace, failed_at, retry_count, status, context_snapshot
		 FROM failed_compensations WHERE status = $1 ORDER BY failed_at LIMIT $2`,
		model.FailedCompensationPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending failed compensations: %w", err)
	}
	defer rows.Close()

	var out []model.FailedCompensation
	for rows.Next() {
		var fc model.FailedCompensation
		if err := rows.Scan(&fc.ID, &fc.OrderID, &fc.UserID, &fc.StepName, &fc.StepOrder, &fc.ErrorMessage, &fc.StackTrace,
			&fc.FailedAt, &fc.RetryCount, &fc.Status, &fc.ContextSnapshot); err != nil {
			return nil, fmt.Errorf("scan failed compensation: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}
