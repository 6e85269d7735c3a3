// Package coupon implements the coupon request pipeline of §4.6: a
// partitioned log keyed by coupon_id feeding one worker per partition,
// so contention for a single coupon's remaining_qty serializes into a
// strict FCFS order while different coupons issue in parallel. The
// transactional core (issueOne) is shared between the async worker
// path and the synchronous issue_sync API, per §6's "synchronous
// variant sharing the same transactional core" requirement.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/dbtx"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// clockNow is overridden in tests.
var clockNow = time.Now

// issuer holds the dependencies issueOne needs; both Pipeline and
// Worker embed one so they share the exact same transactional path.
type issuer struct {
	pool        *pgxpool.Pool
	coupons     *repository.CouponStore
	userCoupons *repository.UserCouponStore
	outbox      *repository.OutboxStore
}

// issueOne runs the worker loop's step 2 (§4.6): lock the coupon,
// verify validity, verify no existing grant, insert the grant,
// decrement remaining_qty, and optionally enqueue an outbox
// notification — all in one transaction.
func (i *issuer) issueOne(ctx context.Context, userID, couponID string) (*model.CouponView, error) {
	var view model.CouponView

	err := dbtx.RunInTx(ctx, i.pool, func(tx pgx.Tx) error {
		c, err := i.coupons.FindByIDForUpdate(ctx, tx, couponID)
		if err != nil {
			if errors.Is(err, repository.ErrCouponNotFound) {
				return apperr.NewBusiness("COUPON_NOT_FOUND", err)
			}
			return apperr.Internal(err)
		}
		if !c.IsValidAt(clockNow()) {
			return apperr.NewBusiness("COUPON_INVALID", repository.ErrCouponInactiveOrExpired)
		}

		exists, err := i.userCoupons.ExistsForUserAndCoupon(ctx, userID, couponID)
		if err != nil {
			return apperr.Internal(err)
		}
		if exists {
			return apperr.NewBusiness("COUPON_ALREADY_ISSUED", repository.ErrAlreadyIssued)
		}

		uc := model.UserCoupon{
			UserCouponID: uuid.NewString(),
			UserID:       userID,
			CouponID:     couponID,
			Status:       model.UserCouponUnused,
			IssuedAt:     clockNow(),
		}
		if err := i.userCoupons.Insert(ctx, tx, uc); err != nil {
			if errors.Is(err, repository.ErrAlreadyIssued) {
				return apperr.NewBusiness("COUPON_ALREADY_ISSUED", err)
			}
			return apperr.Internal(err)
		}

		if err := i.coupons.DecrementRemainingQty(ctx, tx, couponID); err != nil {
			if errors.Is(err, repository.ErrCouponOutOfStock) {
				return apperr.NewBusiness("COUPON_OUT_OF_STOCK", err)
			}
			return apperr.Internal(err)
		}

		view = model.CouponView{
			CouponID:       c.CouponID,
			DiscountType:   c.DiscountType,
			DiscountAmount: c.DiscountAmount,
			DiscountRate:   c.DiscountRate,
			TotalQty:       c.TotalQty,
			RemainingQty:   c.RemainingQty - 1,
			IsActive:       c.RemainingQty-1 > 0,
		}

		if i.outbox != nil {
			if err := i.saveIssuedOutbox(ctx, tx, uc); err != nil {
				log.Warn().Err(err).Str("user_coupon_id", uc.UserCouponID).Msg("coupon: failed to enqueue issuance notification (best-effort)")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (i *issuer) saveIssuedOutbox(ctx context.Context, tx pgx.Tx, uc model.UserCoupon) error {
	payload := fmt.Sprintf(`{"user_coupon_id":%q,"user_id":%q,"coupon_id":%q}`, uc.UserCouponID, uc.UserID, uc.CouponID)
	return i.outbox.Save(ctx, tx, model.OutboxMessage{
		MessageID:   uuid.NewString(),
		UserID:      uc.UserID,
		MessageType: model.MessageCouponIssued,
		Payload:     []byte(payload),
		CreatedAt:   clockNow(),
	})
}
