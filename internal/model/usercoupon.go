package model

import "time"

// UserCouponStatus is the lifecycle state of a user's grant of a
// coupon. Only these four spellings are recognized; a legacy "ACTIVE"
// value (seen in some source systems) is out of scope here.
type UserCouponStatus string

const (
	UserCouponUnused    UserCouponStatus = "UNUSED"
	UserCouponUsed      UserCouponStatus = "USED"
	UserCouponExpired   UserCouponStatus = "EXPIRED"
	UserCouponCancelled UserCouponStatus = "CANCELLED"
)

// UserCoupon records a single (user_id, coupon_id) grant. The pair is
// unique: at most one row exists per user per coupon.
type UserCoupon struct {
	UserCouponID string           `json:"user_coupon_id"`
	UserID       string           `json:"user_id"`
	CouponID     string           `json:"coupon_id"`
	Status       UserCouponStatus `json:"status"`
	IssuedAt     time.Time        `json:"issued_at"`
	UsedAt       *time.Time       `json:"used_at,omitempty"`
}

// ClaimCouponRequest is the enqueue DTO for the coupon pipeline.
type ClaimCouponRequest struct {
	UserID   string `json:"user_id" validate:"required,notblank,max=255"`
	CouponID string `json:"coupon_id" validate:"required,notblank,max=255"`
}
