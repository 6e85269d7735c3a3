package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/dbtx"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/pkg/database"
)

// OrderStore persists orders and their line-item snapshots.
type OrderStore struct {
	pool     database.TxQuerier
	beginner dbtx.Beginner
}

// NewOrderStore constructs an OrderStore over the pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool, beginner: pool}
}

// NewOrderStoreWithQuerier is the test-seam constructor.
func NewOrderStoreWithQuerier(q database.TxQuerier) *OrderStore {
	return &OrderStore{pool: q}
}

// InsertOrderWithItems writes the order header and its line items in
// one transaction, the saga's final step (CreateOrderStep).
func (s *OrderStore) InsertOrderWithItems(ctx context.Context, tx database.TxQuerier, o model.Order, items []model.OrderItem) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO orders (order_id, user_id, status, coupon_id, subtotal, coupon_discount, final_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.OrderID, o.UserID, o.Status, o.CouponID, o.Subtotal, o.CouponDiscount, o.FinalAmount, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_item_id, order_id, product_id, option_id, product_name, option_name, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.OrderItemID, o.OrderID, it.ProductID, it.OptionID, it.ProductName, it.OptionName, it.Quantity, it.UnitPrice, it.Subtotal)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", it.OrderItemID, err)
		}
	}
	return nil
}

// GetByID reads an order header without locking.
func (s *OrderStore) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	row := s.pool.QueryRow(ctx, selectOrderSQL, orderID)
	return scanOrder(row, orderID)
}

// FindByIDForUpdate locks the order row for cancellation.
func (s *OrderStore) FindByIDForUpdate(ctx context.Context, tx database.TxQuerier, orderID string) (*model.Order, error) {
	row := tx.QueryRow(ctx, selectOrderSQL+" FOR UPDATE", orderID)
	return scanOrder(row, orderID)
}

// ClaimForCancellation locks the order row, verifies it belongs to
// actingUserID and is still COMPLETED, and transitions it to CANCELLED
// in that same transaction. The row lock plus the status transition
// being atomic closes the race where two concurrent cancel calls both
// read COMPLETED before either writes CANCELLED: the second caller's
// FindByIDForUpdate blocks until the first commits, then observes
// CANCELLED and returns ErrOrderNotCancellable instead of proceeding.
func (s *OrderStore) ClaimForCancellation(ctx context.Context, orderID, actingUserID string) (*model.Order, error) {
	if s.beginner == nil {
		return nil, fmt.Errorf("order store not pool-backed: ClaimForCancellation requires a transaction beginner")
	}
	var claimed *model.Order
	err := dbtx.RunInTx(ctx, s.beginner, func(tx pgx.Tx) error {
		order, err := s.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != actingUserID {
			return ErrOrderForbidden
		}
		if order.Status != model.OrderCompleted {
			return ErrOrderNotCancellable
		}
		now := time.Now().UTC()
		if err := s.UpdateStatus(ctx, tx, orderID, model.OrderCancelled, &now); err != nil {
			return err
		}
		order.Status = model.OrderCancelled
		order.CancelledAt = &now
		claimed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

const selectOrderSQL = `SELECT order_id, user_id, status, coupon_id, subtotal, coupon_discount, final_amount, created_at, cancelled_at
	FROM orders WHERE order_id = $1`

func scanOrder(row pgx.Row, orderID string) (*model.Order, error) {
	var o model.Order
	if err := row.Scan(&o.OrderID, &o.UserID, &o.Status, &o.CouponID, &o.Subtotal, &o.CouponDiscount, &o.FinalAmount, &o.CreatedAt, &o.CancelledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &o, nil
}

// GetItems returns the line items for an order.
func (s *OrderStore) GetItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_item_id, order_id, product_id, option_id, product_name, option_name, quantity, unit_price, subtotal
		 FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items for %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.OrderItemID, &it.OrderID, &it.ProductID, &it.OptionID, &it.ProductName, &it.OptionName, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatus transitions order status, stamping cancelledAt when
// moving to CANCELLED.
func (s *OrderStore) UpdateStatus(ctx context.Context, tx database.TxQuerier, orderID string, status model.OrderStatus, cancelledAt *time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, cancelled_at = $2 WHERE order_id = $3`,
		status, cancelledAt, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}
