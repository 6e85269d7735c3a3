package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/pkg/database"
)

// OutboxStore implements the transactional outbox (§4.5): rows are
// saved inside the saga's own commit, then drained by a dispatcher
// that claims a batch, attempts publication, and resolves each row to
// PUBLISHED, back to PENDING for retry, or to a terminal FAILED/
// ABANDONED state.
type OutboxStore struct {
	pool database.TxQuerier
}

// NewOutboxStore constructs an OutboxStore over the pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// NewOutboxStoreWithQuerier is the test-seam constructor.
func NewOutboxStoreWithQuerier(q database.TxQuerier) *OutboxStore {
	return &OutboxStore{pool: q}
}

// Save inserts a PENDING outbox row within tx, the same transaction
// that commits the saga's terminal state change.
func (s *OutboxStore) Save(ctx context.Context, tx database.TxQuerier, msg model.OutboxMessage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_messages (message_id, order_id, user_id, message_type, payload, status, retry_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
		msg.MessageID, msg.OrderID, msg.UserID, msg.MessageType, msg.Payload, model.OutboxPending, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("save outbox message: %w", err)
	}
	return nil
}

// ClaimPending atomically moves up to limit PENDING rows to PUBLISHING
// and returns them, using SELECT ... FOR UPDATE SKIP LOCKED so
// multiple dispatcher instances never claim the same row.
func (s *OutboxStore) ClaimPending(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	rows, err := s.pool.Query(ctx,
		`WITH claimed AS (
			SELECT message_id FROM outbox_messages
			WHERE status = $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_messages o
		SET status = $3, last_attempt = $4
		FROM claimed
		WHERE o.message_id = claimed.message_id
		RETURNING o.message_id, o.order_id, o.user_id, o.message_type, o.payload, o.status, o.retry_count, o.last_attempt, o.sent_at, o.created_at`,
		model.OutboxPending, limit, model.OutboxPublishing, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(&m.MessageID, &m.OrderID, &m.UserID, &m.MessageType, &m.Payload, &m.Status, &m.RetryCount, &m.LastAttempt, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claimed outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkPublished finalizes a successful publish.
func (s *OutboxStore) MarkPublished(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_messages SET status = $1, sent_at = $2 WHERE message_id = $3`,
		model.OutboxPublished, time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

// MarkPendingRetry bumps retry_count and returns the row to PENDING,
// or to ABANDONED if maxRetries has been reached.
func (s *OutboxStore) MarkPendingRetry(ctx context.Context, messageID string, maxRetries int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_messages
		 SET status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
		     retry_count = retry_count + 1
		 WHERE message_id = $4`,
		maxRetries, model.OutboxAbandoned, model.OutboxPending, messageID)
	if err != nil {
		return fmt.Errorf("mark outbox message for retry: %w", err)
	}
	return nil
}

// MarkFailed records a non-retryable publish rejection (e.g. the
// broker rejected the record as malformed).
func (s *OutboxStore) MarkFailed(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_messages SET status = $1 WHERE message_id = $2`,
		model.OutboxFailed, messageID)
	if err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}
	return nil
}
