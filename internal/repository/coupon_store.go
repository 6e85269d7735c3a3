package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/pkg/database"
)

// CouponStore provides row-locked and atomic-decrement access to
// coupon campaigns. Grounded on the teacher's coupon_repository.go
// FOR UPDATE + conditional UPDATE pattern, generalized to the richer
// Coupon model (percentage/fixed discount, validity window).
type CouponStore struct {
	pool database.TxQuerier
}

// NewCouponStore constructs a CouponStore over the pool.
func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

// NewCouponStoreWithQuerier is the test-seam constructor.
func NewCouponStoreWithQuerier(q database.TxQuerier) *CouponStore {
	return &CouponStore{pool: q}
}

// Insert creates a coupon campaign.
func (s *CouponStore) Insert(ctx context.Context, c model.Coupon) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coupons (coupon_id, discount_type, discount_amount, discount_rate,
			total_qty, remaining_qty, valid_from, valid_until, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)`,
		c.CouponID, c.DiscountType, c.DiscountAmount, c.DiscountRate,
		c.TotalQty, c.RemainingQty, c.ValidFrom, c.ValidUntil, c.IsActive)
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// GetByID reads a coupon without locking.
func (s *CouponStore) GetByID(ctx context.Context, couponID string) (*model.Coupon, error) {
	return s.scanOne(s.pool.QueryRow(ctx, selectCouponSQL, couponID), couponID)
}

// FindByIDForUpdate locks the coupon row for the lifetime of tx.
func (s *CouponStore) FindByIDForUpdate(ctx context.Context, tx database.TxQuerier, couponID string) (*model.Coupon, error) {
	return s.scanOne(tx.QueryRow(ctx, selectCouponSQL+" FOR UPDATE", couponID), couponID)
}

const selectCouponSQL = `SELECT coupon_id, discount_type, discount_amount, discount_rate,
	total_qty, remaining_qty, valid_from, valid_until, is_active, version, created_at
	FROM coupons WHERE coupon_id = $1`

func (s *CouponStore) scanOne(row pgx.Row, couponID string) (*model.Coupon, error) {
	var c model.Coupon
	if err := row.Scan(&c.CouponID, &c.DiscountType, &c.DiscountAmount, &c.DiscountRate,
		&c.TotalQty, &c.RemainingQty, &c.ValidFrom, &c.ValidUntil, &c.IsActive, &c.Version, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon %s: %w", couponID, err)
	}
	return &c, nil
}

// DecrementRemainingQty atomically decrements remaining_qty by one,
// guarding against underflow with a WHERE clause, and flips is_active
// to false in the same statement once the count reaches zero — the
// invariant 0 <= remaining_qty <= total_qty is enforced by the
// database, not by the caller re-checking after the fact. Returns
// ErrCouponOutOfStock if no row matched (already exhausted or
// concurrently claimed to zero).
func (s *CouponStore) DecrementRemainingQty(ctx context.Context, tx database.TxQuerier, couponID string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE coupons
		 SET remaining_qty = remaining_qty - 1,
		     is_active = CASE WHEN remaining_qty - 1 <= 0 THEN false ELSE is_active END,
		     version = version + 1
		 WHERE coupon_id = $1 AND remaining_qty > 0`,
		couponID)
	if err != nil {
		return fmt.Errorf("decrement coupon %s: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponOutOfStock
	}
	return nil
}

// IsValidNow re-checks activity and validity window at claim time,
// given a coupon already locked via FindByIDForUpdate.
func (s *CouponStore) IsValidNow(c *model.Coupon, now time.Time) bool {
	return c.IsValidAt(now)
}
