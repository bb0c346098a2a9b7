package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmelnyk/gatecheck/internal/repository"
)

type stubBeginner struct {
	tx *stubTx
}

func (b *stubBeginner) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return b.tx, nil
}

// stubTx fails commit with a configurable error. Only Commit and Rollback
// matter to the transaction runner.
type stubTx struct {
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (t *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *stubTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *stubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (t *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (t *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (t *stubTx) Conn() *pgx.Conn { return nil }

func TestRunTxCommits(t *testing.T) {
	tx := &stubTx{}
	b := &stubBeginner{tx: tx}

	err := runTx(context.Background(), b, nil, func(ctx context.Context, db DB) error {
		return nil
	})

	require.NoError(t, err)
	assert.True(t, tx.committed)
}

func TestRunTxCommitSerializationFailureIsRetryable(t *testing.T) {
	// Under serializable isolation the first committer wins: the losing
	// transaction gets 40001 at COMMIT, not at statement time. That error
	// must still come back as repository.ErrRetryable so the service retry
	// loops pick it up.
	tx := &stubTx{commitErr: &pgconn.PgError{Code: "40001"}}
	b := &stubBeginner{tx: tx}

	err := runTx(context.Background(), b, nil, func(ctx context.Context, db DB) error {
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrRetryable)
}

func TestRunTxCommitDeadlockIsRetryable(t *testing.T) {
	tx := &stubTx{commitErr: &pgconn.PgError{Code: "40P01"}}
	b := &stubBeginner{tx: tx}

	err := runTx(context.Background(), b, nil, func(ctx context.Context, db DB) error {
		return nil
	})

	assert.ErrorIs(t, err, repository.ErrRetryable)
}

func TestRunTxFnErrorRollsBack(t *testing.T) {
	boom := errors.New("boom")
	tx := &stubTx{}
	b := &stubBeginner{tx: tx}

	err := runTx(context.Background(), b, nil, func(ctx context.Context, db DB) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}
