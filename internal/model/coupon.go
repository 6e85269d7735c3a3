package model

import "time"

// DiscountType is the pricing rule a coupon applies.
type DiscountType string

const (
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountPercentage  DiscountType = "PERCENTAGE"
)

// Coupon is a limited-quantity grant. Invariant: 0 <= RemainingQty <=
// TotalQty. When RemainingQty reaches 0, IsActive must transition to
// false in the same row update that decrements it.
type Coupon struct {
	CouponID       string       `json:"coupon_id"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountAmount int64        `json:"discount_amount"`
	DiscountRate   float64      `json:"discount_rate"`
	TotalQty       int          `json:"total_qty"`
	RemainingQty   int          `json:"remaining_qty"`
	ValidFrom      time.Time    `json:"valid_from"`
	ValidUntil     time.Time    `json:"valid_until"`
	IsActive       bool         `json:"is_active"`
	Version        int64        `json:"-"`
	CreatedAt      time.Time    `json:"-"`
}

// Discount computes the discount amount a coupon applies to subtotal.
// FIXED_AMOUNT never discounts more than the subtotal; PERCENTAGE is
// clamped to [0,1] at write time (see validator), not here.
func (c *Coupon) Discount(subtotal int64) int64 {
	switch c.DiscountType {
	case DiscountPercentage:
		d := int64(float64(subtotal) * c.DiscountRate)
		if d > subtotal {
			return subtotal
		}
		return d
	default: // DiscountFixedAmount
		if c.DiscountAmount > subtotal {
			return subtotal
		}
		return c.DiscountAmount
	}
}

// IsValidAt reports whether the coupon can be issued/used at t:
// active, within its validity window, and has remaining stock.
func (c *Coupon) IsValidAt(t time.Time) bool {
	if !c.IsActive || c.RemainingQty <= 0 {
		return false
	}
	if t.Before(c.ValidFrom) || t.After(c.ValidUntil) {
		return false
	}
	return true
}

// CreateCouponRequest is the DTO for creating a coupon.
type CreateCouponRequest struct {
	CouponID       string       `json:"coupon_id" validate:"required,notblank,max=255"`
	DiscountType   DiscountType `json:"discount_type" validate:"required,oneof=FIXED_AMOUNT PERCENTAGE"`
	DiscountAmount int64        `json:"discount_amount" validate:"gte=0"`
	DiscountRate   float64      `json:"discount_rate" validate:"gte=0,lte=1"`
	TotalQty       int          `json:"total_qty" validate:"required,gte=1"`
	ValidFrom      time.Time    `json:"valid_from" validate:"required"`
	ValidUntil     time.Time    `json:"valid_until" validate:"required,gtfield=ValidFrom"`
}

// CouponView is the read-facing projection returned by GetByID and by
// a successful issuance.
type CouponView struct {
	CouponID       string       `json:"coupon_id"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountAmount int64        `json:"discount_amount"`
	DiscountRate   float64      `json:"discount_rate"`
	TotalQty       int          `json:"total_qty"`
	RemainingQty   int          `json:"remaining_qty"`
	IsActive       bool         `json:"is_active"`
}
