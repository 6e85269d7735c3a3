package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/dbtx"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/lock"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// DeductBalanceStep is saga step 2 (§4.3.b): debits the user's wallet
// by the order's final amount.
type DeductBalanceStep struct {
	pool      *pgxpool.Pool
	users     *repository.UserStore
	orders    *repository.OrderStore
	locker    lock.Locker
	waitTime  time.Duration
	leaseTime time.Duration
}

// NewDeductBalanceStep constructs the step with its dependencies.
func NewDeductBalanceStep(pool *pgxpool.Pool, users *repository.UserStore, orders *repository.OrderStore, locker lock.Locker, waitTime, leaseTime time.Duration) *DeductBalanceStep {
	return &DeductBalanceStep{pool: pool, users: users, orders: orders, locker: locker, waitTime: waitTime, leaseTime: leaseTime}
}

func (s *DeductBalanceStep) Name() string { return "DeductBalanceStep" }
func (s *DeductBalanceStep) Order() int   { return 2 }

// Execute debits snap.FinalAmount from the user's balance.
func (s *DeductBalanceStep) Execute(ctx context.Context, snap *Snapshot) error {
	key := lock.UserBalanceKey(snap.UserID)
	err := lock.WithLock(ctx, s.locker, key, s.waitTime, s.leaseTime, func(ctx context.Context) error {
		return dbtx.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
			u, err := s.users.FindByIDForUpdate(ctx, tx, snap.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return apperr.NotFound(err)
				}
				return apperr.Internal(err)
			}
			if u.Balance < snap.FinalAmount {
				return apperr.NewBusiness("INSUFFICIENT_BALANCE", repository.ErrInsufficientBalance)
			}
			return s.users.UpdateBalance(ctx, tx, snap.UserID, u.Balance-snap.FinalAmount)
		})
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return apperr.Transient(err)
		}
		return fmt.Errorf("deduct balance for user %s: %w", snap.UserID, err)
	}
	return nil
}

// Compensate refunds the debited amount to the user's balance: the
// durable Order row's final_amount once CreateOrderStep has committed
// (snap.OrderID set), otherwise snap.FinalAmount, the amount Execute
// debited.
func (s *DeductBalanceStep) Compensate(ctx context.Context, snap *Snapshot) error {
	amount := snap.FinalAmount
	if snap.OrderID != "" {
		order, err := s.orders.GetByID(ctx, snap.OrderID)
		if err != nil {
			return apperr.Critical(fmt.Errorf("compensate balance: cannot read order: %w", err))
		}
		amount = order.FinalAmount
	}

	key := lock.UserBalanceKey(snap.UserID)
	return lock.WithLock(ctx, s.locker, key, s.waitTime, s.leaseTime, func(ctx context.Context) error {
		return dbtx.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
			u, err := s.users.FindByIDForUpdate(ctx, tx, snap.UserID)
			if err != nil {
				return apperr.Critical(fmt.Errorf("compensate balance: user row unreadable: %w", err))
			}
			return s.users.UpdateBalance(ctx, tx, snap.UserID, u.Balance+amount)
		})
	})
}
