package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

const existenceKeyPrefix = "coupon_exists:"

// ExistenceCache is the Redis-backed read-through cache §4.6 step 2
// calls for: Enqueue consults it to fast-path reject an unknown
// coupon_id before ever writing a PENDING status row or publishing to
// the partitioned log, instead of only discovering the coupon doesn't
// exist once a worker dequeues the request. Grounded on the pack's
// Cheertaboi-Billing-system coupon_cache.go (an in-process existence
// cache) redone over Redis, since internal/lock and internal/asyncstatus
// already run against the same Redis instance.
type ExistenceCache struct {
	rdb     *redis.Client
	coupons *repository.CouponStore
	ttl     time.Duration
}

// NewExistenceCache builds an ExistenceCache. ttl bounds how long an
// unknown coupon_id's NOT_FOUND result is cached before the next
// request re-checks Postgres (so a coupon created after a prior miss
// becomes visible within ttl).
func NewExistenceCache(rdb *redis.Client, coupons *repository.CouponStore, ttl time.Duration) *ExistenceCache {
	return &ExistenceCache{rdb: rdb, coupons: coupons, ttl: ttl}
}

func existenceKey(couponID string) string { return existenceKeyPrefix + couponID }

// Exists reports whether couponID is a known coupon. Redis is
// consulted first; on a miss (or on any Redis error, which fails open
// to Postgres rather than blocking enqueue on a non-authoritative
// cache) the result is read from the coupon store and cached either
// way, so a stampede of requests for the same unknown coupon_id only
// reaches Postgres once per ttl window.
func (c *ExistenceCache) Exists(ctx context.Context, couponID string) (bool, error) {
	val, err := c.rdb.Get(ctx, existenceKey(couponID)).Result()
	if err == nil {
		return val == "1", nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("coupon_id", couponID).Msg("coupon: existence cache read failed, falling back to store")
		return c.checkStore(ctx, couponID)
	}

	exists, err := c.checkStore(ctx, couponID)
	if err != nil {
		return false, err
	}
	c.populate(ctx, couponID, exists)
	return exists, nil
}

func (c *ExistenceCache) checkStore(ctx context.Context, couponID string) (bool, error) {
	_, err := c.coupons.GetByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("coupon: existence check: %w", err)
	}
	return true, nil
}

func (c *ExistenceCache) populate(ctx context.Context, couponID string, exists bool) {
	v := "0"
	if exists {
		v = "1"
	}
	if err := c.rdb.Set(ctx, existenceKey(couponID), v, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("coupon_id", couponID).Msg("coupon: existence cache write failed")
	}
}
