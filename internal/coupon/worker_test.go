package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/asyncstatus"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
)

func newTestWorker(t *testing.T, producer partitionProducer) (*Worker, *asyncstatus.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	status := asyncstatus.New(rdb, 30*time.Minute, 24*time.Hour)
	w := NewWorker(nil, nil, nil, nil, nil, producer, status, "coupon-requests", 4, 0, 3, 5*time.Second)
	return w, status
}

func TestWorkerRetryOrDLQReenqueuesBelowMaxRetries(t *testing.T) {
	pub := &fakeProducer{}
	w, status := newTestWorker(t, pub)
	req := model.CouponRequest{RequestID: "req-1", UserID: "user-1", CouponID: "SUMMER10", RetryCount: 1}

	w.retryOrDLQ(context.Background(), req, errors.New("db unavailable"))

	require.Equal(t, 1, pub.publishCnt)
	assert.Equal(t, "coupon-requests", pub.lastTopic)

	var republished model.CouponRequest
	require.NoError(t, json.Unmarshal(pub.lastValue, &republished))
	assert.Equal(t, 2, republished.RetryCount)

	got, err := status.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, model.AsyncRetry, got.Status)
}

func TestWorkerRetryOrDLQSendsToDLQAtMaxRetries(t *testing.T) {
	pub := &fakeProducer{}
	w, status := newTestWorker(t, pub)
	req := model.CouponRequest{RequestID: "req-2", UserID: "user-1", CouponID: "SUMMER10", RetryCount: 3}

	w.retryOrDLQ(context.Background(), req, errors.New("db unavailable"))

	require.Equal(t, 1, pub.publishCnt)
	assert.Equal(t, "coupon-requests.dlq", pub.lastTopic)

	got, err := status.Get(context.Background(), "req-2")
	require.NoError(t, err)
	assert.Equal(t, model.AsyncFailed, got.Status)
	assert.Contains(t, got.Error, "retries exhausted")
}
