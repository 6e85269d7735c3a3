package compensation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// clockNow is overridable in tests.
var clockNow = time.Now

// HaltError signals the orchestrator must halt further compensation
// (§4.7's CompensationException). Callers use errors.As to detect it.
type HaltError struct {
	cause error
}

func (e *HaltError) Error() string {
	if e.cause == nil {
		return "compensation halted: critical failure"
	}
	return "compensation halted: " + e.cause.Error()
}
func (e *HaltError) Unwrap() error { return e.cause }

// FailureContext mirrors §4.7's CompensationFailureContext.
type FailureContext struct {
	OrderID      *string
	UserID       string
	StepName     string
	StepOrder    int
	Err          error
	SnapshotJSON any // marshaled into ContextSnapshot for operator inspection
}

// Handler implements the Failure Compensation Handler.
type Handler struct {
	store *repository.FailedCompensationStore
	alert AlertSink
}

// NewHandler constructs a Handler.
func NewHandler(store *repository.FailedCompensationStore, alert AlertSink) *Handler {
	return &Handler{store: store, alert: alert}
}

// Handle records a FailedCompensation row and, for critical errors,
// pages the alert sink and returns a *HaltError so the orchestrator
// stops running further compensations. Non-critical errors return nil
// so the orchestrator continues compensating the remaining steps.
func (h *Handler) Handle(ctx context.Context, fc FailureContext) error {
	snapshot, _ := json.Marshal(fc.SnapshotJSON)

	row := model.FailedCompensation{
		ID:              uuid.NewString(),
		OrderID:         fc.OrderID,
		UserID:          fc.UserID,
		StepName:        fc.StepName,
		StepOrder:       fc.StepOrder,
		ErrorMessage:    fc.Err.Error(),
		FailedAt:        clockNow(),
		Status:          model.FailedCompensationPending,
		ContextSnapshot: snapshot,
	}
	if err := h.store.Insert(ctx, row); err != nil {
		log.Error().Err(err).Str("step_name", fc.StepName).Msg("failed to persist FailedCompensation row")
	}

	if apperr.Is(fc.Err, apperr.KindCritical) {
		orderID := ""
		if fc.OrderID != nil {
			orderID = *fc.OrderID
		}
		if err := h.alert.NotifyCritical(ctx, orderID, fc.StepName); err != nil {
			log.Warn().Err(err).Msg("alert sink notify failed (best-effort)")
		}
		return &HaltError{cause: fc.Err}
	}
	return nil
}
