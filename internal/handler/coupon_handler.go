package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// CouponAdminStore is the subset of *repository.CouponStore the
// handler needs, narrowed for testability.
type CouponAdminStore interface {
	Insert(ctx context.Context, c model.Coupon) error
	GetByID(ctx context.Context, couponID string) (*model.Coupon, error)
}

// CouponHandler handles HTTP requests for coupon campaign
// administration: creating a campaign and reading its current state.
type CouponHandler struct {
	store     CouponAdminStore
	validator *validator.Validate
}

// NewCouponHandler creates a new CouponHandler with the given store and validator.
func NewCouponHandler(store CouponAdminStore, v *validator.Validate) *CouponHandler {
	return &CouponHandler{store: store, validator: v}
}

// formatValidationError converts validator errors to user-facing messages.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "CouponID":
				if tag == "required" || tag == "notblank" {
					return "invalid request: coupon_id is required"
				}
				if tag == "max" {
					return "invalid request: coupon_id exceeds maximum length of 255"
				}
				return "invalid request: coupon_id is invalid"
			case "DiscountType":
				return "invalid request: discount_type must be FIXED_AMOUNT or PERCENTAGE"
			case "TotalQty":
				if tag == "required" || tag == "gte" {
					return "invalid request: total_qty must be at least 1"
				}
				return "invalid request: total_qty is invalid"
			case "DiscountRate":
				return "invalid request: discount_rate must be between 0 and 1"
			case "ValidFrom":
				return "invalid request: valid_from is required"
			case "ValidUntil":
				return "invalid request: valid_until must be after valid_from"
			default:
				if tag == "required" {
					return "invalid request: " + field + " is required"
				}
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// CreateCoupon handles POST /api/coupons requests to create a new coupon campaign.
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var req model.CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	coupon := model.Coupon{
		CouponID:       req.CouponID,
		DiscountType:   req.DiscountType,
		DiscountAmount: req.DiscountAmount,
		DiscountRate:   req.DiscountRate,
		TotalQty:       req.TotalQty,
		RemainingQty:   req.TotalQty,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		IsActive:       true,
	}

	if err := h.store.Insert(c.Context(), coupon); err != nil {
		log.Error().Err(err).Str("coupon_id", req.CouponID).Msg("failed to create coupon")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"coupon_id": coupon.CouponID})
}

// GetCoupon handles GET /api/coupons/:coupon_id requests to retrieve coupon details.
func (h *CouponHandler) GetCoupon(c *fiber.Ctx) error {
	couponID := c.Params("coupon_id")
	if couponID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request: coupon_id is required",
		})
	}

	coupon, err := h.store.GetByID(c.Context(), couponID)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "coupon not found",
			})
		}
		log.Error().Err(err).Str("coupon_id", couponID).Msg("failed to get coupon")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.JSON(model.CouponView{
		CouponID:       coupon.CouponID,
		DiscountType:   coupon.DiscountType,
		DiscountAmount: coupon.DiscountAmount,
		DiscountRate:   coupon.DiscountRate,
		TotalQty:       coupon.TotalQty,
		RemainingQty:   coupon.RemainingQty,
		IsActive:       coupon.IsActive,
	})
}
