package repository

import "errors"

// Sentinel errors surfaced by the store layer. Callers translate
// these into apperr.Kind via the orchestrator/pipeline, mirroring the
// teacher's internal/service/errors.go sentinel list but scoped one
// level lower, next to the queries that detect them.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrProductOptionNotFound  = errors.New("product option not found")
	ErrCouponNotFound         = errors.New("coupon not found")
	ErrUserCouponNotFound     = errors.New("user coupon not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrAlreadyIssued          = errors.New("coupon already issued to user")
	ErrVersionConflict        = errors.New("optimistic version conflict")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrCouponOutOfStock       = errors.New("coupon out of stock")
	ErrCouponInactiveOrExpired = errors.New("coupon inactive or outside validity window")
	ErrCouponNotUnused        = errors.New("user coupon not in UNUSED status")
	ErrOrderNotCancellable    = errors.New("order not in a cancellable state")
	ErrOrderForbidden         = errors.New("order does not belong to acting user")
)
