package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// serializableAttempts bounds reruns of a SERIALIZABLE unit of work that lost
// a conflict.
const serializableAttempts = 3

// TxBeginner is satisfied by *pgxpool.Pool and pgx.Tx.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn in a REPEATABLE READ transaction. Driver errors come back
// translated by MapError; domain errors from fn pass through.
func WithTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	return MapError(runTx(ctx, db, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn))
}

// WithSerializableTx runs fn in a SERIALIZABLE transaction and reruns it when
// Postgres reports a serialization failure or deadlock. Count-then-mutate
// guards must use it, and fn must be safe to repeat.
func WithSerializableTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	var err error
	for attempt := 1; attempt <= serializableAttempts; attempt++ {
		err = runTx(ctx, db, opts, fn)
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return MapError(err)
}

func runTx(ctx context.Context, db TxBeginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit: %w", err)
	}
	return nil
}
