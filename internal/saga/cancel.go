package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// CancelError is returned by CancelOrder on any failure.
type CancelError struct {
	OrderID string
	Cause   error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("cancel order %s: %v", e.OrderID, e.Cause)
}
func (e *CancelError) Unwrap() error { return e.Cause }

// CancelOrder implements the §6 cancel_order API: it reverses a
// COMPLETED order's effects in the same LIFO fashion as saga
// compensation, reusing each step's Compensate method, and reports
// what was restored. Only the acting order's own owner may cancel it.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderStore *repository.OrderStore, orderID, actingUserID string) (*model.CancelReport, error) {
	// ClaimForCancellation locks the order row and transitions it to
	// CANCELLED atomically: only one of any concurrently-racing
	// CancelOrder calls for the same order observes COMPLETED and
	// claims it, so at most one caller ever proceeds to run
	// compensation (§8 "repeated cancellation is a no-op error, not a
	// double-restore").
	order, err := orderStore.ClaimForCancellation(ctx, orderID, actingUserID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return nil, &CancelError{OrderID: orderID, Cause: apperr.NotFound(err)}
		case errors.Is(err, repository.ErrOrderForbidden):
			return nil, &CancelError{OrderID: orderID, Cause: apperr.NewBusiness("FORBIDDEN", fmt.Errorf("order %s does not belong to user %s", orderID, actingUserID))}
		case errors.Is(err, repository.ErrOrderNotCancellable):
			return nil, &CancelError{OrderID: orderID, Cause: apperr.NewBusiness("ORDER_NOT_CANCELLABLE", repository.ErrOrderNotCancellable)}
		default:
			return nil, &CancelError{OrderID: orderID, Cause: apperr.Internal(err)}
		}
	}

	items, err := orderStore.GetItems(ctx, orderID)
	if err != nil {
		return nil, &CancelError{OrderID: orderID, Cause: apperr.Internal(err)}
	}

	snap := &Snapshot{
		UserID:         order.UserID,
		CouponID:       order.CouponID,
		CouponDiscount: order.CouponDiscount,
		Subtotal:       order.Subtotal,
		FinalAmount:    order.FinalAmount,
		OrderID:        orderID,
	}
	for _, it := range items {
		snap.Items = append(snap.Items, model.OrderItemInput{
			ProductID: it.ProductID, OptionID: it.OptionID, Quantity: it.Quantity, UnitPrice: it.UnitPrice,
		})
	}
	// Cancellation reverses every step that would have run forward,
	// in the same LIFO order as failure compensation — highest Order()
	// first, ending with DeductInventoryStep.
	trail := make([]string, 0, len(o.steps))
	for _, st := range o.steps {
		if _, ok := st.(*UseCouponStep); ok && snap.CouponID == nil {
			continue
		}
		trail = append(trail, st.Name())
	}
	snap.ExecutionTrail = trail

	if err := o.compensate(ctx, snap, ""); err != nil {
		return nil, &CancelError{OrderID: orderID, Cause: err}
	}

	return &model.CancelReport{
		OrderID:          orderID,
		RefundedAmount:   order.FinalAmount,
		RestockedItems:   len(items),
		CouponReinstated: order.CouponID != nil,
	}, nil
}
