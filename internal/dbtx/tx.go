// Package dbtx is the contextual transaction glue (§4.10/§9): an
// explicit "run this closure in its own DB transaction" primitive that
// replaces the source system's implicit propagation-REQUIRES_NEW
// sub-transactions, plus an after-commit hook list that replaces its
// listener-style after-commit framework feature. Every saga step runs
// its execute/compensate body through RunInTx so each gets an
// independent transaction that is never nested inside another.
package dbtx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Beginner is implemented by *pgxpool.Pool. Kept as an interface so
// tests can substitute a fake pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunInTx runs fn in a brand-new transaction from pool, independent of
// any transaction the caller may itself be inside. It commits on a nil
// return and rolls back otherwise; the rollback is always attempted
// (pgx treats rollback-after-commit as a safe no-op).
func RunInTx(ctx context.Context, pool Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			log.Warn().Err(rbErr).Msg("tx rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AfterCommitHook is invoked once a transaction started by RunInTxWithHooks
// has committed successfully. Hooks must not block; they are meant for
// fire-and-forget signals (e.g. waking the outbox dispatcher).
type AfterCommitHook func()

// RunInTxWithHooks behaves like RunInTx but lets fn register hooks
// (via the returned registrar) that fire only after a successful
// commit, never on rollback. This is the explicit replacement for the
// source's after-commit listener: CreateOrderStep uses it to nudge the
// outbox dispatcher without coupling the transaction to the
// dispatcher's wakeup channel.
func RunInTxWithHooks(ctx context.Context, pool Beginner, fn func(tx pgx.Tx, register func(AfterCommitHook)) error) error {
	var hooks []AfterCommitHook
	register := func(h AfterCommitHook) {
		hooks = append(hooks, h)
	}

	err := RunInTx(ctx, pool, func(tx pgx.Tx) error {
		return fn(tx, register)
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h()
	}
	return nil
}

// Pool is the subset of *pgxpool.Pool used by dbtx and its callers,
// narrowed so tests can swap in a lighter fake.
type Pool interface {
	Beginner
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)
