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

func TestUserCouponStoreInsertAlreadyIssued(t *testing.T) {
	q := &mockQuerier{execErr: &pgconn.PgError{Code: pgUniqueViolation}}
	store := NewUserCouponStoreWithQuerier(q)

	err := store.Insert(context.Background(), q, model.UserCoupon{
		UserCouponID: "uc-1", UserID: "user-1", CouponID: "SUMMER10",
		Status: model.UserCouponUnused, IssuedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrAlreadyIssued)
}

func TestUserCouponStoreInsertSuccess(t *testing.T) {
	q := &mockQuerier{}
	store := NewUserCouponStoreWithQuerier(q)

	err := store.Insert(context.Background(), q, model.UserCoupon{
		UserCouponID: "uc-1", UserID: "user-1", CouponID: "SUMMER10",
		Status: model.UserCouponUnused, IssuedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestUserCouponStoreExistsForUserAndCoupon(t *testing.T) {
	q := &mockQuerier{row: mockRow{scan: func(dest ...any) error {
		*dest[0].(*int) = 1
		return nil
	}}}
	store := NewUserCouponStoreWithQuerier(q)

	exists, err := store.ExistsForUserAndCoupon(context.Background(), "user-1", "SUMMER10")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserCouponStoreExistsForUserAndCouponFalse(t *testing.T) {
	q := &mockQuerier{row: errRow(pgx.ErrNoRows)}
	store := NewUserCouponStoreWithQuerier(q)

	exists, err := store.ExistsForUserAndCoupon(context.Background(), "user-1", "SUMMER10")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserCouponStoreFindByUserAndCouponForUpdateNotFound(t *testing.T) {
	q := &mockQuerier{row: errRow(pgx.ErrNoRows)}
	store := NewUserCouponStoreWithQuerier(q)

	_, err := store.FindByUserAndCouponForUpdate(context.Background(), q, "user-1", "SUMMER10")
	assert.ErrorIs(t, err, ErrUserCouponNotFound)
}

func TestUserCouponStoreUpdateStatus(t *testing.T) {
	q := &mockQuerier{}
	store := NewUserCouponStoreWithQuerier(q)
	now := time.Now()

	err := store.UpdateStatus(context.Background(), q, "uc-1", model.UserCouponUsed, &now)
	require.NoError(t, err)
	assert.Equal(t, model.UserCouponUsed, q.lastArgs[0])
}
