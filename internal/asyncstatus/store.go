// Package asyncstatus is the short-lived request-id -> outcome mapping
// of §3/§4.6, consulted by the polling endpoint. It is backed by Redis
// (the same cluster as internal/lock), since a TTL-evicting key/value
// store is exactly what "PENDING ~30 minutes, terminal ~24 hours"
// calls for — grounded on the go-redis usage pattern seen across the
// retrieval pack's coupon and outbox repositories.
package asyncstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
)

const keyPrefix = "async_status:"

// Store reads and writes AsyncStatus rows.
type Store struct {
	rdb         *redis.Client
	ttlPending  time.Duration
	ttlTerminal time.Duration
}

// New builds a Store. ttlPending/ttlTerminal come from
// async_status.ttl_pending_ms/ttl_terminal_ms.
func New(rdb *redis.Client, ttlPending, ttlTerminal time.Duration) *Store {
	return &Store{rdb: rdb, ttlPending: ttlPending, ttlTerminal: ttlTerminal}
}

func key(requestID string) string { return keyPrefix + requestID }

// PutPending writes the initial PENDING row at enqueue time, with the
// pending TTL.
func (s *Store) PutPending(ctx context.Context, requestID string, enqueuedAt time.Time) error {
	status := model.AsyncStatus{
		RequestID:        requestID,
		Status:           model.AsyncPending,
		EnqueuedAtUnixMS: enqueuedAt.UnixMilli(),
	}
	return s.put(ctx, status, s.ttlPending)
}

// PutRetry marks a row RETRY without resetting its enqueued timestamp,
// so WaitingMS keeps accumulating across retry cycles.
func (s *Store) PutRetry(ctx context.Context, requestID string) error {
	existing, err := s.getRaw(ctx, requestID)
	if err != nil {
		return err
	}
	existing.Status = model.AsyncRetry
	return s.put(ctx, existing, s.ttlPending)
}

// PutTerminal writes a COMPLETED or FAILED row with the terminal TTL.
// result is nil on failure; errMsg is empty on success.
func (s *Store) PutTerminal(ctx context.Context, requestID string, status model.AsyncStatusState, result *model.CouponView, errMsg string) error {
	existing, _ := s.getRaw(ctx, requestID)
	existing.RequestID = requestID
	existing.Status = status
	existing.Result = result
	existing.Error = errMsg
	if existing.EnqueuedAtUnixMS == 0 {
		existing.EnqueuedAtUnixMS = time.Now().UnixMilli()
	}
	return s.put(ctx, existing, s.ttlTerminal)
}

func (s *Store) put(ctx context.Context, status model.AsyncStatus, ttl time.Duration) error {
	b, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("asyncstatus: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, key(status.RequestID), b, ttl).Err(); err != nil {
		return fmt.Errorf("asyncstatus: set: %w", err)
	}
	return nil
}

func (s *Store) getRaw(ctx context.Context, requestID string) (model.AsyncStatus, error) {
	b, err := s.rdb.Get(ctx, key(requestID)).Bytes()
	if err == redis.Nil {
		return model.AsyncStatus{RequestID: requestID}, nil
	}
	if err != nil {
		return model.AsyncStatus{}, fmt.Errorf("asyncstatus: get: %w", err)
	}
	var status model.AsyncStatus
	if err := json.Unmarshal(b, &status); err != nil {
		return model.AsyncStatus{}, fmt.Errorf("asyncstatus: unmarshal: %w", err)
	}
	return status, nil
}

// Get returns the current status for requestID, or NOT_FOUND if the
// row has expired or never existed. WaitingMS is computed at read
// time.
func (s *Store) Get(ctx context.Context, requestID string) (model.AsyncStatus, error) {
	b, err := s.rdb.Get(ctx, key(requestID)).Bytes()
	if err == redis.Nil {
		return model.AsyncStatus{RequestID: requestID, Status: model.AsyncNotFound}, nil
	}
	if err != nil {
		return model.AsyncStatus{}, fmt.Errorf("asyncstatus: get: %w", err)
	}
	var status model.AsyncStatus
	if err := json.Unmarshal(b, &status); err != nil {
		return model.AsyncStatus{}, fmt.Errorf("asyncstatus: unmarshal: %w", err)
	}
	if status.EnqueuedAtUnixMS > 0 {
		status.WaitingMS = time.Now().UnixMilli() - status.EnqueuedAtUnixMS
	}
	return status, nil
}
