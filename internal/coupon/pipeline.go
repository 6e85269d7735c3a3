package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/asyncstatus"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/eventlog"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// producer is the subset of *eventlog.Publisher the pipeline needs to
// enqueue a request.
type producer interface {
	Publish(ctx context.Context, topic string, partitions int32, key, value []byte) error
}

// existenceChecker is satisfied by *ExistenceCache, narrowed so tests
// can substitute a fake without touching Redis.
type existenceChecker interface {
	Exists(ctx context.Context, couponID string) (bool, error)
}

// Pipeline is the façade described in §6: enqueue hands a request to
// the partitioned log and returns immediately with a request_id;
// status polls the async-status store; issue_sync runs the same
// transactional core inline and blocks for the caller's response.
// Grounded on fairyhunter13's claim-coupon handler/service split,
// generalized from its single in-process lock to the partitioned-log
// design §4.6 calls for.
type Pipeline struct {
	issuer         *issuer
	producer       producer
	status         *asyncstatus.Store
	topic          string
	partitions     int32
	cache          existenceChecker
	enqueueTimeout time.Duration
}

// NewPipeline constructs a Pipeline. Attach an existence cache and an
// enqueue deadline with WithExistenceCache/WithEnqueueTimeout; a
// Pipeline built without either (as unit tests do) skips the fast-path
// check and never bounds Enqueue's context.
func NewPipeline(pool *pgxpool.Pool, coupons *repository.CouponStore, userCoupons *repository.UserCouponStore, outbox *repository.OutboxStore, pub *eventlog.Publisher, status *asyncstatus.Store, topic string, partitions int32) *Pipeline {
	return &Pipeline{
		issuer:     &issuer{pool: pool, coupons: coupons, userCoupons: userCoupons, outbox: outbox},
		producer:   pub,
		status:     status,
		topic:      topic,
		partitions: partitions,
	}
}

// WithExistenceCache attaches the Redis-backed coupon-existence cache
// Enqueue consults before ever touching the partitioned log (§4.6
// step 2's fast-path rejection).
func (p *Pipeline) WithExistenceCache(cache *ExistenceCache) *Pipeline {
	p.cache = cache
	return p
}

// WithEnqueueTimeout bounds Enqueue's total latency, including the
// fast-path validation and the log append (§5 "coupon enqueue
// deadline: 5s total"). A non-positive duration disables the deadline.
func (p *Pipeline) WithEnqueueTimeout(d time.Duration) *Pipeline {
	p.enqueueTimeout = d
	return p
}

// Enqueue implements §4.6 step 1: validate the coupon exists via the
// fast-path cache, write a PENDING status row, publish the request
// keyed by coupon_id so it lands on that coupon's dedicated partition,
// and return the request_id for polling.
func (p *Pipeline) Enqueue(ctx context.Context, userID, couponID string) (string, error) {
	if p.enqueueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.enqueueTimeout)
		defer cancel()
	}

	if p.cache != nil {
		exists, err := p.cache.Exists(ctx, couponID)
		if err != nil {
			return "", fmt.Errorf("coupon: existence check: %w", err)
		}
		if !exists {
			return "", apperr.NotFound(fmt.Errorf("coupon: unknown coupon_id %q", couponID))
		}
	}

	requestID := uuid.NewString()
	now := time.Now()

	req := model.CouponRequest{
		RequestID:  requestID,
		UserID:     userID,
		CouponID:   couponID,
		EnqueuedAt: now,
		RetryCount: 0,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("coupon: marshal request: %w", err)
	}

	if err := p.status.PutPending(ctx, requestID, now); err != nil {
		return "", fmt.Errorf("coupon: write pending status: %w", err)
	}
	if err := p.producer.Publish(ctx, p.topic, p.partitions, []byte(couponID), payload); err != nil {
		return "", fmt.Errorf("coupon: enqueue request: %w", err)
	}
	return requestID, nil
}

// Status implements the §6 polling endpoint.
func (p *Pipeline) Status(ctx context.Context, requestID string) (model.AsyncStatus, error) {
	return p.status.Get(ctx, requestID)
}

// IssueSync implements the §6 synchronous issue_sync API: it runs the
// exact same transactional core a worker would, without touching the
// partitioned log, so the caller gets an immediate result instead of a
// request_id to poll. Concurrent async requests for the same coupon
// still serialize correctly because issueOne takes the DB row lock
// regardless of which path reached it.
func (p *Pipeline) IssueSync(ctx context.Context, userID, couponID string) (*model.CouponView, error) {
	return p.issuer.issueOne(ctx, userID, couponID)
}
