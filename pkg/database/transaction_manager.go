package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txStarter is the slice of *pgxpool.Pool the manager depends on
type txStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresTransactionManager opens read-committed transactions that stop
// waiting for a row lock after a fixed timeout.
type PostgresTransactionManager struct {
	db          txStarter
	lockTimeout string // lock_timeout setting, empty for unbounded waits
}

// NewPostgresTransactionManager returns a manager over pool. A zero
// lockTimeout leaves lock waits unbounded.
func NewPostgresTransactionManager(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresTransactionManager {
	return newTransactionManager(pool, lockTimeout)
}

func newTransactionManager(db txStarter, lockTimeout time.Duration) *PostgresTransactionManager {
	m := &PostgresTransactionManager{db: db}
	if lockTimeout > 0 {
		// 0ms would disable the timeout in Postgres
		ms := max(lockTimeout.Milliseconds(), 1)
		m.lockTimeout = strconv.FormatInt(ms, 10) + "ms"
	}
	return m
}

// BeginTx starts a transaction. Writers serialize on item rows with
// SELECT ... FOR UPDATE, so read committed is enough. Failures are wrapped in
// ErrStoreUnavailable since the caller can only retry them.
func (m *PostgresTransactionManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if m.lockTimeout == "" {
		return tx, nil
	}

	// is_local=true scopes the setting to this transaction, like SET LOCAL
	if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", m.lockTimeout); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("%w: failed to set lock timeout: %w", ErrStoreUnavailable, err)
	}
	return tx, nil
}
