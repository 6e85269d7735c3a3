package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductStoreFindOptionForUpdateFound(t *testing.T) {
	q := &mockQuerier{row: mockRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "opt-1"
		*dest[1].(*string) = "prod-1"
		*dest[2].(*int) = 10
		*dest[3].(*int64) = 2
		return nil
	}}}
	store := NewProductStoreWithQuerier(q)

	opt, err := store.FindOptionForUpdate(context.Background(), q, "opt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, opt.Stock)
	assert.Equal(t, int64(2), opt.Version)
}

func TestProductStoreFindOptionForUpdateNotFound(t *testing.T) {
	q := &mockQuerier{row: errRow(pgx.ErrNoRows)}
	store := NewProductStoreWithQuerier(q)

	_, err := store.FindOptionForUpdate(context.Background(), q, "ghost")
	assert.ErrorIs(t, err, ErrProductOptionNotFound)
}

func TestProductStoreUpdateStock(t *testing.T) {
	q := &mockQuerier{execTag: pgconn.NewCommandTag("UPDATE 1")}
	store := NewProductStoreWithQuerier(q)

	err := store.UpdateStock(context.Background(), q, "opt-1", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, q.lastArgs[0])
}
