package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves an in-flight transaction from context, if any.
// Repositories check this before falling back to the clinic connection or
// the pool, so any query issued under InTx automatically joins the
// transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the clinic-scoped connection stored in the
// context and returns a derived context carrying the transaction. The caller
// owns the transaction and must Commit or Rollback it.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, errors.New("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// TxRunner executes a function inside a single transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTxRunner runs functions inside a transaction begun on the clinic
// connection when one is present in the context, or directly on the pool
// otherwise. If fn returns an error the transaction is rolled back and the
// error is returned unchanged.
type PoolTxRunner struct {
	Pool *pgxpool.Pool
}

func (r *PoolTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var tx pgx.Tx
	var err error
	if conn := ConnFromContext(ctx); conn != nil {
		tx, err = conn.Begin(ctx)
	} else {
		tx, err = r.Pool.Begin(ctx)
	}
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, DBTxKey, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
