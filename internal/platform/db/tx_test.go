package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// fakeTx only implements the calls runTx makes.
type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	commitErrs []error
	txs        []*fakeTx
	opts       []pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	if n := len(b.txs); n < len(b.commitErrs) {
		tx.commitErr = b.commitErrs[n]
	}
	b.txs = append(b.txs, tx)
	b.opts = append(b.opts, opts)
	return tx, nil
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	b := &fakeBeginner{}
	require.NoError(t, WithTx(context.Background(), b, func(pgx.Tx) error { return nil }))
	require.Len(t, b.txs, 1)
	assert.True(t, b.txs[0].committed)
	assert.Equal(t, pgx.RepeatableRead, b.opts[0].IsoLevel)

	notFound := shared.NotFound("Product not found")
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return notFound })
	assert.Same(t, notFound, err)
	assert.True(t, b.txs[1].rolledBack)
	assert.False(t, b.txs[1].committed)
}

func TestWithSerializableTxRetriesConflicts(t *testing.T) {
	conflict := &pgconn.PgError{Code: "40001"}
	b := &fakeBeginner{commitErrs: []error{conflict, conflict}}
	runs := 0
	err := WithSerializableTx(context.Background(), b, func(pgx.Tx) error {
		runs++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	assert.Equal(t, pgx.Serializable, b.opts[2].IsoLevel)
}

func TestWithSerializableTxRetriesMappedStatementConflicts(t *testing.T) {
	b := &fakeBeginner{}
	runs := 0
	err := WithSerializableTx(context.Background(), b, func(pgx.Tx) error {
		runs++
		if runs == 1 {
			return fmt.Errorf("users: lock super admins: %w", MapError(&pgconn.PgError{Code: "40001"}))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.True(t, b.txs[0].rolledBack)
	assert.True(t, b.txs[1].committed)
}

func TestWithSerializableTxKeepsMappedMessage(t *testing.T) {
	b := &fakeBeginner{}
	err := WithSerializableTx(context.Background(), b, func(pgx.Tx) error {
		return fmt.Errorf("users: lock super admins: %w", MapError(&pgconn.PgError{Code: "40P01"}))
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "users: lock super admins")
	assert.Equal(t, "Concurrent modification detected, please retry", shared.UserSafeMessage(err))
	assert.Len(t, b.txs, serializableAttempts)
}

func TestWithSerializableTxGivesUp(t *testing.T) {
	conflict := &pgconn.PgError{Code: "40P01"}
	b := &fakeBeginner{commitErrs: []error{conflict, conflict, conflict, conflict}}
	err := WithSerializableTx(context.Background(), b, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, b.txs, serializableAttempts)
}

func TestWithSerializableTxDoesNotRetryDomainErrors(t *testing.T) {
	b := &fakeBeginner{}
	boom := errors.New("boom")
	runs := 0
	err := WithSerializableTx(context.Background(), b, func(pgx.Tx) error {
		runs++
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, runs)
}
