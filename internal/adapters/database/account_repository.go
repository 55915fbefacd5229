package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
)

// PostgresAccountRepository reads balances and charges auction winners
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// CreateAccount registers a user with an opening balance
func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, userID uuid.UUID, displayName string, balance int64) error {
	query := `
		INSERT INTO accounts (id, display_name, balance)
		VALUES ($1, $2, $3)
	`
	if _, err := r.pool.Exec(ctx, query, userID, displayName, balance); err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetBalance returns the user's balance, or closing.ErrAccountNotFound
func (r *PostgresAccountRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, closing.ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount within the closing transaction. There is no floor:
// a winner may end up with a negative balance.
func (r *PostgresAccountRepository) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error {
	query := `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := tx.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return closing.ErrAccountNotFound
	}
	return nil
}
