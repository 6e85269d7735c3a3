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

// UserStore provides row-locked and versioned access to user wallets.
// Grounded on the teacher's CouponRepository narrow-interface shape,
// generalized to wallet semantics.
type UserStore struct {
	pool database.TxQuerier
}

// NewUserStore constructs a UserStore over the pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// NewUserStoreWithQuerier is the test-seam constructor.
func NewUserStoreWithQuerier(q database.TxQuerier) *UserStore {
	return &UserStore{pool: q}
}

// Insert creates a user row with an initial balance. Used by test
// fixtures and administrative provisioning; not part of the saga path.
func (s *UserStore) Insert(ctx context.Context, userID string, balance int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, balance, version) VALUES ($1, $2, 0)`,
		userID, balance)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID reads a user without locking.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*model.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, balance, version, created_at FROM users WHERE user_id = $1`, userID)
	var u model.User
	if err := row.Scan(&u.UserID, &u.Balance, &u.Version, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

// FindByIDForUpdate locks the user row with SELECT ... FOR UPDATE for
// the lifetime of tx. Used by DeductBalanceStep and its compensation.
func (s *UserStore) FindByIDForUpdate(ctx context.Context, tx database.TxQuerier, userID string) (*model.User, error) {
	row := tx.QueryRow(ctx,
		`SELECT user_id, balance, version, created_at FROM users WHERE user_id = $1 FOR UPDATE`, userID)
	var u model.User
	if err := row.Scan(&u.UserID, &u.Balance, &u.Version, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user for update %s: %w", userID, err)
	}
	return &u, nil
}

// UpdateBalance writes newBalance and bumps version. Must be called
// only after FindByIDForUpdate within the same transaction.
func (s *UserStore) UpdateBalance(ctx context.Context, tx database.TxQuerier, userID string, newBalance int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE users SET balance = $1, version = version + 1 WHERE user_id = $2`,
		newBalance, userID)
	if err != nil {
		return fmt.Errorf("update balance for %s: %w", userID, err)
	}
	return nil
}
