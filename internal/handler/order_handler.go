package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/saga"
)

// OrderSagaRunner is the subset of *saga.Orchestrator the handler
// needs, narrowed for testability.
type OrderSagaRunner interface {
	ExecuteSaga(ctx context.Context, snap *saga.Snapshot) (string, error)
	CancelOrder(ctx context.Context, orderStore *repository.OrderStore, orderID, actingUserID string) (*model.CancelReport, error)
}

// CouponPricer is the subset of *repository.CouponStore the handler
// needs to resolve a coupon's discount rule before the saga begins.
type CouponPricer interface {
	GetByID(ctx context.Context, couponID string) (*model.Coupon, error)
}

// OrderHandler handles HTTP requests for order execution and
// cancellation (§4.3/§6).
type OrderHandler struct {
	saga      OrderSagaRunner
	orders    *repository.OrderStore
	coupons   CouponPricer
	validator *validator.Validate
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(saga OrderSagaRunner, orders *repository.OrderStore, coupons CouponPricer, v *validator.Validate) *OrderHandler {
	return &OrderHandler{saga: saga, orders: orders, coupons: coupons, validator: v}
}

// CreateOrder handles POST /api/orders: it resolves pricing from the
// caller-supplied unit prices and, if a coupon is named, that coupon's
// discount rule, then hands the fully-priced snapshot to the saga
// orchestrator. Pricing resolution happens here rather than as its own
// saga step because it needs no row lock — the coupon's discount
// rule (type/rate/amount) doesn't change once created, and the
// authoritative stock/balance checks happen later, inside the saga's
// own locked steps.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req model.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatOrderValidationError(err)})
	}

	var subtotal int64
	for _, it := range req.Items {
		subtotal += it.UnitPrice * int64(it.Quantity)
	}

	var discount int64
	if req.CouponID != nil {
		coupon, err := h.coupons.GetByID(c.Context(), *req.CouponID)
		if err != nil {
			if errors.Is(err, repository.ErrCouponNotFound) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "coupon not found"})
			}
			log.Error().Err(err).Str("coupon_id", *req.CouponID).Msg("order: failed to resolve coupon pricing")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
		discount = coupon.Discount(subtotal)
	}
	finalAmount := subtotal - discount
	if finalAmount < 0 {
		finalAmount = 0
	}

	snap := &saga.Snapshot{
		UserID:         req.UserID,
		Items:          req.Items,
		CouponID:       req.CouponID,
		CouponDiscount: discount,
		Subtotal:       subtotal,
		FinalAmount:    finalAmount,
	}

	orderID, err := h.saga.ExecuteSaga(c.Context(), snap)
	if err != nil {
		return h.writeSagaError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":        orderID,
		"subtotal":        subtotal,
		"coupon_discount": discount,
		"final_amount":    finalAmount,
	})
}

// CancelOrder handles POST /api/orders/:order_id/cancel (§6
// cancel_order): reverses a completed order's effects.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID := c.Params("order_id")
	if orderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: order_id is required"})
	}
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: user_id is required"})
	}

	report, err := h.saga.CancelOrder(c.Context(), h.orders, orderID, userID)
	if err != nil {
		return h.writeSagaError(c, err)
	}
	return c.JSON(report)
}

func (h *OrderHandler) writeSagaError(c *fiber.Ctx, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case apperr.KindBusiness:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case apperr.KindConflict:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case apperr.KindTransient:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "temporarily unavailable, retry"})
	default:
		log.Error().Err(err).Msg("order: saga execution failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

func formatOrderValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()
			switch {
			case tag == "required":
				return "invalid request: " + field + " is required"
			case tag == "min":
				return "invalid request: " + field + " must have at least one entry"
			case tag == "gte":
				return "invalid request: " + field + " is invalid"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}
