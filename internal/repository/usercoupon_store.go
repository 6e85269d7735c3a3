package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/pkg/database"
)

// pgUniqueViolation is the PostgreSQL error code for a unique
// constraint violation, per the teacher's coupon_repository.go
// PgError-code translation pattern.
const pgUniqueViolation = "23505"

// UserCouponStore provides access to per-user coupon grants, relying
// on a unique (user_id, coupon_id) constraint to make issuance
// idempotent under concurrent retries.
type UserCouponStore struct {
	pool database.TxQuerier
}

// NewUserCouponStore constructs a UserCouponStore over the pool.
func NewUserCouponStore(pool *pgxpool.Pool) *UserCouponStore {
	return &UserCouponStore{pool: pool}
}

// NewUserCouponStoreWithQuerier is the test-seam constructor.
func NewUserCouponStoreWithQuerier(q database.TxQuerier) *UserCouponStore {
	return &UserCouponStore{pool: q}
}

// Insert grants couponID to userID. Returns ErrAlreadyIssued if the
// (user_id, coupon_id) pair already exists.
func (s *UserCouponStore) Insert(ctx context.Context, tx database.TxQuerier, uc model.UserCoupon) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO user_coupons (user_coupon_id, user_id, coupon_id, status, issued_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uc.UserCouponID, uc.UserID, uc.CouponID, uc.Status, uc.IssuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyIssued
		}
		return fmt.Errorf("insert user coupon: %w", err)
	}
	return nil
}

// ExistsForUserAndCoupon reports whether a grant already exists,
// without locking. Used as a cheap pre-check before attempting the
// locked claim path.
func (s *UserCouponStore) ExistsForUserAndCoupon(ctx context.Context, userID, couponID string) (bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT 1 FROM user_coupons WHERE user_id = $1 AND coupon_id = $2`, userID, couponID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check user coupon existence: %w", err)
	}
	return true, nil
}

// FindByUserAndCouponForUpdate locks the grant row for the lifetime of tx.
func (s *UserCouponStore) FindByUserAndCouponForUpdate(ctx context.Context, tx database.TxQuerier, userID, couponID string) (*model.UserCoupon, error) {
	row := tx.QueryRow(ctx,
		`SELECT user_coupon_id, user_id, coupon_id, status, issued_at, used_at
		 FROM user_coupons WHERE user_id = $1 AND coupon_id = $2 FOR UPDATE`,
		userID, couponID)
	var uc model.UserCoupon
	if err := row.Scan(&uc.UserCouponID, &uc.UserID, &uc.CouponID, &uc.Status, &uc.IssuedAt, &uc.UsedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserCouponNotFound
		}
		return nil, fmt.Errorf("get user coupon for update: %w", err)
	}
	return &uc, nil
}

// UpdateStatus transitions a grant's status, stamping usedAt when
// moving to USED.
func (s *UserCouponStore) UpdateStatus(ctx context.Context, tx database.TxQuerier, userCouponID string, status model.UserCouponStatus, usedAt *time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE user_coupons SET status = $1, used_at = $2 WHERE user_coupon_id = $3`,
		status, usedAt, userCouponID)
	if err != nil {
		return fmt.Errorf("update user coupon status: %w", err)
	}
	return nil
}
