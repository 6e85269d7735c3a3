package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/dbtx"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// UseCouponStep is saga step 3 (§4.3.c): consumes a previously-issued
// UserCoupon grant. Skipped entirely when snap.CouponID is nil — no
// KV-lock is used here, only the DB row lock, since a UserCoupon row
// is contended only by its own owning user, never cross-user.
type UseCouponStep struct {
	pool        *pgxpool.Pool
	userCoupons *repository.UserCouponStore
}

// NewUseCouponStep constructs the step with its dependencies.
func NewUseCouponStep(pool *pgxpool.Pool, userCoupons *repository.UserCouponStore) *UseCouponStep {
	return &UseCouponStep{pool: pool, userCoupons: userCoupons}
}

func (s *UseCouponStep) Name() string { return "UseCouponStep" }
func (s *UseCouponStep) Order() int   { return 3 }

// Execute transitions the user's coupon grant from UNUSED to USED.
// A nil snap.CouponID means this order carries no coupon; the step is
// a no-op (and is therefore never appended to the execution trail by
// the caller's skip check — see orchestrator.go).
func (s *UseCouponStep) Execute(ctx context.Context, snap *Snapshot) error {
	if snap.CouponID == nil {
		return nil
	}
	couponID := *snap.CouponID
	return dbtx.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		uc, err := s.userCoupons.FindByUserAndCouponForUpdate(ctx, tx, snap.UserID, couponID)
		if err != nil {
			if errors.Is(err, repository.ErrUserCouponNotFound) {
				return apperr.NewBusiness("COUPON_INVALID", repository.ErrUserCouponNotFound)
			}
			return apperr.Internal(err)
		}
		if uc.Status != model.UserCouponUnused {
			return apperr.NewBusiness("COUPON_INVALID", repository.ErrCouponNotUnused)
		}
		now := clockNow()
		return s.userCoupons.UpdateStatus(ctx, tx, uc.UserCouponID, model.UserCouponUsed, &now)
	})
}

// Compensate transitions the grant back to UNUSED and clears used_at.
func (s *UseCouponStep) Compensate(ctx context.Context, snap *Snapshot) error {
	if snap.CouponID == nil {
		return nil
	}
	couponID := *snap.CouponID
	err := dbtx.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		uc, err := s.userCoupons.FindByUserAndCouponForUpdate(ctx, tx, snap.UserID, couponID)
		if err != nil {
			return err
		}
		return s.userCoupons.UpdateStatus(ctx, tx, uc.UserCouponID, model.UserCouponUnused, nil)
	})
	if err != nil {
		return apperr.Critical(fmt.Errorf("compensate coupon usage for user %s coupon %s: %w", snap.UserID, couponID, err))
	}
	return nil
}
