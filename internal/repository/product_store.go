package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/pkg/database"
)

// ProductStore provides row-locked access to product option stock.
type ProductStore struct {
	pool database.TxQuerier
}

// NewProductStore constructs a ProductStore over the pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// NewProductStoreWithQuerier is the test-seam constructor.
func NewProductStoreWithQuerier(q database.TxQuerier) *ProductStore {
	return &ProductStore{pool: q}
}

// Insert seeds a product option row. Test/administrative use only.
func (s *ProductStore) Insert(ctx context.Context, opt model.ProductOption) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO product_options (option_id, product_id, stock, version) VALUES ($1, $2, $3, 0)`,
		opt.OptionID, opt.ProductID, opt.Stock)
	if err != nil {
		return fmt.Errorf("insert product option: %w", err)
	}
	return nil
}

// FindOptionForUpdate locks the product option row for the lifetime of tx.
func (s *ProductStore) FindOptionForUpdate(ctx context.Context, tx database.TxQuerier, optionID string) (*model.ProductOption, error) {
	row := tx.QueryRow(ctx,
		`SELECT option_id, product_id, stock, version FROM product_options WHERE option_id = $1 FOR UPDATE`,
		optionID)
	var opt model.ProductOption
	if err := row.Scan(&opt.OptionID, &opt.ProductID, &opt.Stock, &opt.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductOptionNotFound
		}
		return nil, fmt.Errorf("get product option for update %s: %w", optionID, err)
	}
	return &opt, nil
}

// UpdateStock writes newStock and bumps version. Must be called after
// FindOptionForUpdate within the same transaction.
func (s *ProductStore) UpdateStock(ctx context.Context, tx database.TxQuerier, optionID string, newStock int) error {
	_, err := tx.Exec(ctx,
		`UPDATE product_options SET stock = $1, version = version + 1 WHERE option_id = $2`,
		newStock, optionID)
	if err != nil {
		return fmt.Errorf("update stock for %s: %w", optionID, err)
	}
	return nil
}
