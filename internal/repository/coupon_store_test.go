package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
)

func couponScan(qty int) func(dest ...any) error {
	return func(dest ...any) error {
		now := time.Now()
		*dest[0].(*string) = "SUMMER10"
		*dest[1].(*model.DiscountType) = model.DiscountPercentage
		*dest[2].(*int64) = 0
		*dest[3].(*float64) = 0.1
		*dest[4].(*int) = 100
		*dest[5].(*int) = qty
		*dest[6].(*time.Time) = now.Add(-time.Hour)
		*dest[7].(*time.Time) = now.Add(time.Hour)
		*dest[8].(*bool) = qty > 0
		*dest[9].(*int64) = 1
		*dest[10].(*time.Time) = now
		return nil
	}
}

func TestCouponStoreGetByIDFound(t *testing.T) {
	q := &mockQuerier{row: mockRow{scan: couponScan(5)}}
	store := NewCouponStoreWithQuerier(q)

	c, err := store.GetByID(context.Background(), "SUMMER10")
	require.NoError(t, err)
	assert.Equal(t, 5, c.RemainingQty)
	assert.True(t, c.IsActive)
}

func TestCouponStoreGetByIDNotFound(t *testing.T) {
	q := &mockQuerier{row: errRow(pgx.ErrNoRows)}
	store := NewCouponStoreWithQuerier(q)

	_, err := store.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestCouponStoreDecrementRemainingQtySuccess(t *testing.T) {
	q := &mockQuerier{execTag: pgconn.NewCommandTag("UPDATE 1")}
	store := NewCouponStoreWithQuerier(q)

	err := store.DecrementRemainingQty(context.Background(), q, "SUMMER10")
	require.NoError(t, err)
}

func TestCouponStoreDecrementRemainingQtyOutOfStock(t *testing.T) {
	q := &mockQuerier{execTag: pgconn.NewCommandTag("UPDATE 0")}
	store := NewCouponStoreWithQuerier(q)

	err := store.DecrementRemainingQty(context.Background(), q, "SUMMER10")
	assert.ErrorIs(t, err, ErrCouponOutOfStock)
}

func TestCouponStoreIsValidNow(t *testing.T) {
	store := NewCouponStoreWithQuerier(&mockQuerier{})
	now := time.Now()
	c := &model.Coupon{IsActive: true, RemainingQty: 1, ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(time.Hour)}
	assert.True(t, store.IsValidNow(c, now))
	assert.False(t, store.IsValidNow(c, now.Add(2*time.Hour)))
}
