package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/dbtx"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// CreateOrderStep is saga step 4 (§4.3.d): the terminal step. Its
// forward path writes the order, its line items, and an outbox row in
// one transaction; its Compensate is never invoked intra-saga (this
// step is last in the chain) but is reused by the cancellation API to
// mark the order CANCELLED and enqueue an ORDER_CANCELLED event.
type CreateOrderStep struct {
	pool          *pgxpool.Pool
	orders        *repository.OrderStore
	outbox        *repository.OutboxStore
	wakeDispatcher func()
}

// NewCreateOrderStep constructs the step. wakeDispatcher may be nil;
// if set, it is invoked as an after-commit hook so the outbox
// dispatcher does not have to wait a full poll interval to notice a
// freshly-written PENDING row.
func NewCreateOrderStep(pool *pgxpool.Pool, orders *repository.OrderStore, outbox *repository.OutboxStore, wakeDispatcher func()) *CreateOrderStep {
	return &CreateOrderStep{pool: pool, orders: orders, outbox: outbox, wakeDispatcher: wakeDispatcher}
}

func (s *CreateOrderStep) Name() string { return "CreateOrderStep" }
func (s *CreateOrderStep) Order() int   { return 4 }

// Execute writes the order, its items, and an ORDER_COMPLETED outbox
// row, and populates snap.OrderID for compensation of earlier steps.
func (s *CreateOrderStep) Execute(ctx context.Context, snap *Snapshot) error {
	orderID := uuid.NewString()
	now := clockNow()

	order := model.Order{
		OrderID:        orderID,
		UserID:         snap.UserID,
		Status:         model.OrderCompleted,
		CouponID:       snap.CouponID,
		Subtotal:       snap.Subtotal,
		CouponDiscount: snap.CouponDiscount,
		FinalAmount:    snap.FinalAmount,
		CreatedAt:      now,
	}

	items := make([]model.OrderItem, 0, len(snap.Items))
	for _, in := range snap.Items {
		items = append(items, model.OrderItem{
			OrderItemID: uuid.NewString(),
			OrderID:     orderID,
			ProductID:   in.ProductID,
			OptionID:    in.OptionID,
			ProductName: in.ProductID,
			OptionName:  in.OptionID,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Subtotal:    in.UnitPrice * int64(in.Quantity),
		})
	}

	payload, err := json.Marshal(model.OrderCompletedPayload{
		OrderID:     orderID,
		UserID:      snap.UserID,
		FinalAmount: snap.FinalAmount,
		OccurredAt:  now.UnixMilli(),
	})
	if err != nil {
		return apperr.Internal(fmt.Errorf("marshal order completed payload: %w", err))
	}

	err = dbtx.RunInTxWithHooks(ctx, s.pool, func(tx pgx.Tx, register func(dbtx.AfterCommitHook)) error {
		if err := s.orders.InsertOrderWithItems(ctx, tx, order, items); err != nil {
			return apperr.Internal(err)
		}
		if err := s.outbox.Save(ctx, tx, model.OutboxMessage{
			MessageID:   uuid.NewString(),
			OrderID:     orderID,
			UserID:      snap.UserID,
			MessageType: model.MessageOrderCompleted,
			Payload:     payload,
			CreatedAt:   now,
		}); err != nil {
			return apperr.Internal(err)
		}
		if s.wakeDispatcher != nil {
			register(func() { s.wakeDispatcher() })
		}
		return nil
	})
	if err != nil {
		return err
	}

	snap.OrderID = orderID
	return nil
}

// Compensate marks the order CANCELLED and enqueues an
// ORDER_CANCELLED outbox row. Used only by the cancellation API
// (cancel_order), not by intra-saga failure recovery.
func (s *CreateOrderStep) Compensate(ctx context.Context, snap *Snapshot) error {
	if snap.OrderID == "" {
		return nil
	}
	now := clockNow()

	payload, err := json.Marshal(model.OrderCancelledPayload{
		OrderID:     snap.OrderID,
		UserID:      snap.UserID,
		CancelledAt: now.UnixMilli(),
	})
	if err != nil {
		return apperr.Critical(fmt.Errorf("marshal order cancelled payload: %w", err))
	}

	err = dbtx.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.orders.UpdateStatus(ctx, tx, snap.OrderID, model.OrderCancelled, &now); err != nil {
			return err
		}
		return s.outbox.Save(ctx, tx, model.OutboxMessage{
			MessageID:   uuid.NewString(),
			OrderID:     snap.OrderID,
			UserID:      snap.UserID,
			MessageType: model.MessageOrderCancelled,
			Payload:     payload,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return apperr.Critical(fmt.Errorf("compensate create-order (cancellation) for order %s: %w", snap.OrderID, err))
	}
	return nil
}
