package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	t.Run("retries serialization failures", func(t *testing.T) {
		attempts := 0
		var retried []int

		opts := database.DefaultTxOptions()
		opts.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

		err := database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
			attempts++
			if attempts < 3 {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("exhausted retries are transient", func(t *testing.T) {
		attempts := 0
		opts := database.DefaultTxOptions()
		opts.MaxRetries = 2

		err := database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
			attempts++
			return &pq.Error{Code: "40P01"}
		})

		require.ErrorIs(t, err, database.ErrTransient)
		var transient *database.TransientError
		require.ErrorAs(t, err, &transient)
		assert.Equal(t, 3, transient.Attempts)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		attempts := 0
		err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			attempts++
			return database.ErrInsufficientStock
		})

		require.ErrorIs(t, err, database.ErrInsufficientStock)
		assert.Equal(t, 1, attempts)
	})

	t.Run("canceled context stops the loop", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		called := false
		err := database.WithRetry(canceled, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			called = true
			return nil
		})

		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestWithTransactionRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO businesses (id, name, created_at, updated_at)
			VALUES ('00000000-0000-0000-0000-000000000001', 'Ghost', NOW(), NOW())`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM businesses`).Scan(&n))
	assert.Zero(t, n)
}

func TestLockTimeoutIsApplied(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	opts := database.DefaultTxOptions()
	opts.LockTimeout = 250 * time.Millisecond

	err := database.WithTransaction(ctx, db, opts, func(tx *sql.Tx) error {
		var setting string
		if err := tx.QueryRowContext(ctx, `SHOW lock_timeout`).Scan(&setting); err != nil {
			return err
		}
		assert.Equal(t, "250ms", setting)
		return nil
	})
	require.NoError(t, err)
}

func TestReadOnlySnapshotRejectsWrites(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	err := database.WithTransaction(ctx, db, database.ReadOnlySnapshot(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM businesses`)
		return err
	})
	require.Error(t, err)
}
