package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/dbtx"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/lock"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// DeductInventoryStep is saga step 1 (§4.3.a): reserves stock for
// every line item, one KV-lock + DB transaction per item.
type DeductInventoryStep struct {
	pool      *pgxpool.Pool
	products  *repository.ProductStore
	orders    *repository.OrderStore
	locker    lock.Locker
	waitTime  time.Duration
	leaseTime time.Duration
}

// NewDeductInventoryStep constructs the step with its dependencies.
func NewDeductInventoryStep(pool *pgxpool.Pool, products *repository.ProductStore, orders *repository.OrderStore, locker lock.Locker, waitTime, leaseTime time.Duration) *DeductInventoryStep {
	return &DeductInventoryStep{pool: pool, products: products, orders: orders, locker: locker, waitTime: waitTime, leaseTime: leaseTime}
}

func (s *DeductInventoryStep) Name() string { return "DeductInventoryStep" }
func (s *DeductInventoryStep) Order() int   { return 1 }

// Execute decrements stock for every item under its own lock and
// transaction, so a slow item never holds another option's lock.
func (s *DeductInventoryStep) Execute(ctx context.Context, snap *Snapshot) error {
	for _, item := range snap.Items {
		item := item
		key := lock.ProductStockKey(item.OptionID)
		err := lock.WithLock(ctx, s.locker, key, s.waitTime, s.leaseTime, func(ctx context.Context) error {
			return dbtx.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
				opt, err := s.products.FindOptionForUpdate(ctx, tx, item.OptionID)
				if err != nil {
					if errors.Is(err, repository.ErrProductOptionNotFound) {
						return apperr.NotFound(err)
					}
					return apperr.Internal(err)
				}
				if opt.Stock < item.Quantity {
					return apperr.NewBusiness("INSUFFICIENT_STOCK", repository.ErrInsufficientStock)
				}
				return s.products.UpdateStock(ctx, tx, item.OptionID, opt.Stock-item.Quantity)
			})
		})
		if err != nil {
			if errors.Is(err, lock.ErrLockTimeout) {
				return apperr.Transient(err)
			}
			return fmt.Errorf("deduct inventory for option %s: %w", item.OptionID, err)
		}
	}
	return nil
}

// Compensate restores stock for every item. Once CreateOrderStep has
// committed (snap.OrderID set, as on the cancellation path), the item
// list is read back from the durable Order rather than from
// snap.Items; before that no order row exists, and the quantities
// deducted by Execute are taken from snap.Items.
func (s *DeductInventoryStep) Compensate(ctx context.Context, snap *Snapshot) error {
	var items []model.OrderItem
	if snap.OrderID == "" {
		for _, in := range snap.Items {
			items = append(items, model.OrderItem{ProductID: in.ProductID, OptionID: in.OptionID, Quantity: in.Quantity})
		}
	} else {
		var err error
		items, err = s.orders.GetItems(ctx, snap.OrderID)
		if err != nil {
			return apperr.Critical(fmt.Errorf("compensate inventory: cannot read order items: %w", err))
		}
	}

	for _, item := range items {
		item := item
		key := lock.ProductStockKey(item.OptionID)
		err := lock.WithLock(ctx, s.locker, key, s.waitTime, s.leaseTime, func(ctx context.Context) error {
			return dbtx.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
				opt, err := s.products.FindOptionForUpdate(ctx, tx, item.OptionID)
				if err != nil {
					return err
				}
				return s.products.UpdateStock(ctx, tx, item.OptionID, opt.Stock+item.Quantity)
			})
		})
		if err != nil {
			// Best-effort: log and continue restoring the remaining
			// options rather than aborting the whole compensation.
			log.Warn().Err(err).Str("order_id", snap.OrderID).Str("option_id", item.OptionID).
				Msg("deduct inventory compensation: restore failed, continuing with remaining items")
		}
	}
	return nil
}
