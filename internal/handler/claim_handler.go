package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
)

// CouponIssuer is the subset of *coupon.Pipeline the handler needs,
// narrowed for testability.
type CouponIssuer interface {
	Enqueue(ctx context.Context, userID, couponID string) (string, error)
	Status(ctx context.Context, requestID string) (model.AsyncStatus, error)
	IssueSync(ctx context.Context, userID, couponID string) (*model.CouponView, error)
}

// ClaimHandler handles HTTP requests for coupon issuance (§4.6/§6):
// the async enqueue/poll pair and the synchronous shortcut.
type ClaimHandler struct {
	pipeline  CouponIssuer
	validator *validator.Validate
}

// NewClaimHandler creates a new ClaimHandler with the given pipeline and validator.
func NewClaimHandler(pipeline CouponIssuer, v *validator.Validate) *ClaimHandler {
	return &ClaimHandler{pipeline: pipeline, validator: v}
}

// formatClaimValidationError converts validator errors to user-facing messages.
func formatClaimValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "UserID":
				if tag == "required" || tag == "notblank" {
					return "invalid request: user_id is required"
				}
				if tag == "max" {
					return "invalid request: user_id exceeds maximum length of 255"
				}
				return "invalid request: user_id is invalid"
			case "CouponID":
				if tag == "required" || tag == "notblank" {
					return "invalid request: coupon_id is required"
				}
				if tag == "max" {
					return "invalid request: coupon_id exceeds maximum length of 255"
				}
				return "invalid request: coupon_id is invalid"
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

func (h *ClaimHandler) parseClaim(c *fiber.Ctx) (*model.ClaimCouponRequest, error) {
	var req model.ClaimCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, err
	}
	return &req, h.validator.Struct(req)
}

// EnqueueClaim handles POST /api/coupons/claim: enqueues a coupon
// request onto the partitioned log and returns a request_id to poll.
func (h *ClaimHandler) EnqueueClaim(c *fiber.Ctx) error {
	req, err := h.parseClaim(c)
	if err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatClaimValidationError(err)})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	requestID, err := h.pipeline.Enqueue(c.Context(), req.UserID, req.CouponID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "coupon not found"})
		}
		log.Error().Err(err).Str("user_id", req.UserID).Str("coupon_id", req.CouponID).Msg("claim: failed to enqueue coupon request")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"request_id": requestID})
}

// ClaimStatus handles GET /api/coupons/claim/:request_id: polls the
// async status of a previously-enqueued claim.
func (h *ClaimHandler) ClaimStatus(c *fiber.Ctx) error {
	requestID := c.Params("request_id")
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: request_id is required"})
	}

	status, err := h.pipeline.Status(c.Context(), requestID)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("claim: failed to read status")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	if status.Status == model.AsyncNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "request not found"})
	}
	return c.JSON(status)
}

// ClaimSync handles POST /api/coupons/claim/sync (§6 issue_sync): runs
// the issuance transaction inline and returns the result immediately.
func (h *ClaimHandler) ClaimSync(c *fiber.Ctx) error {
	req, err := h.parseClaim(c)
	if err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatClaimValidationError(err)})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	view, err := h.pipeline.IssueSync(c.Context(), req.UserID, req.CouponID)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "coupon not found"})
		case apperr.KindBusiness:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case apperr.KindTransient:
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "temporarily unavailable, retry"})
		default:
			log.Error().Err(err).Str("user_id", req.UserID).Str("coupon_id", req.CouponID).Msg("claim: sync issuance failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(view)
}
