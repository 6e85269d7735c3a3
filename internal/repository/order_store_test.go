package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
)

func TestOrderStoreInsertOrderWithItems(t *testing.T) {
	q := &mockQuerier{}
	store := NewOrderStoreWithQuerier(q)

	err := store.InsertOrderWithItems(context.Background(), q,
		model.Order{OrderID: "order-1", UserID: "user-1", Status: model.OrderCompleted, CreatedAt: time.Now()},
		[]model.OrderItem{{OrderItemID: "item-1", ProductID: "p1", OptionID: "o1", Quantity: 2, UnitPrice: 100, Subtotal: 200}})
	require.NoError(t, err)
}

func TestOrderStoreGetByIDNotFound(t *testing.T) {
	q := &mockQuerier{row: errRow(pgx.ErrNoRows)}
	store := NewOrderStoreWithQuerier(q)

	_, err := store.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderStoreGetByIDFound(t *testing.T) {
	now := time.Now()
	q := &mockQuerier{row: mockRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "order-1"
		*dest[1].(*string) = "user-1"
		*dest[2].(*model.OrderStatus) = model.OrderCompleted
		*dest[3].(**string) = nil
		*dest[4].(*int64) = 1000
		*dest[5].(*int64) = 100
		*dest[6].(*int64) = 900
		*dest[7].(*time.Time) = now
		*dest[8].(**time.Time) = nil
		return nil
	}}}
	store := NewOrderStoreWithQuerier(q)

	o, err := store.GetByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), o.FinalAmount)
}

func TestOrderStoreGetItems(t *testing.T) {
	rows := &fakeRows{scans: []func(dest ...any) error{
		func(dest ...any) error {
			*dest[0].(*string) = "item-1"
			*dest[1].(*string) = "order-1"
			*dest[2].(*string) = "p1"
			*dest[3].(*string) = "o1"
			*dest[4].(*string) = "Widget"
			*dest[5].(*string) = "Blue"
			*dest[6].(*int) = 2
			*dest[7].(*int64) = 100
			*dest[8].(*int64) = 200
			return nil
		},
	}}
	q := &mockQuerier{rows: rows}
	store := NewOrderStoreWithQuerier(q)

	items, err := store.GetItems(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].ProductName)
}

func TestOrderStoreUpdateStatus(t *testing.T) {
	q := &mockQuerier{}
	store := NewOrderStoreWithQuerier(q)
	now := time.Now()

	err := store.UpdateStatus(context.Background(), q, "order-1", model.OrderCancelled, &now)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, q.lastArgs[0])
}
