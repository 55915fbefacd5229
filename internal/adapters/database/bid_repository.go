package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
)

// PostgresBidRepository implements bids.BidRepository and closing.BidRepository using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// SaveBid appends a bid within a transaction
func (r *PostgresBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	query := `
		INSERT INTO bids (id, item_id, user_id, amount, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.ItemID,
		bid.UserID,
		bid.Amount,
		bid.Message,
		bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetBidsByItemID retrieves the bid history of an item, lowest amount first
func (r *PostgresBidRepository) GetBidsByItemID(ctx context.Context, itemID uuid.UUID) ([]*bids.Bid, error) {
	query := `
		SELECT id, item_id, user_id, amount, message, created_at
		FROM bids
		WHERE item_id = $1
		ORDER BY amount ASC
	`
	rows, err := r.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	result, err := pgx.CollectRows(rows, scanBid)
	if err != nil {
		return nil, fmt.Errorf("failed to scan bids: %w", err)
	}
	return result, nil
}

// GetHighestBid returns the winning candidate for an item, or closing.ErrNoBids
func (r *PostgresBidRepository) GetHighestBid(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*bids.Bid, error) {
	query := `
		SELECT id, item_id, user_id, amount, message, created_at
		FROM bids
		WHERE item_id = $1
		ORDER BY amount DESC
		LIMIT 1
	`
	rows, err := tx.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query highest bid: %w", err)
	}

	bid, err := pgx.CollectExactlyOneRow(rows, scanBid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, closing.ErrNoBids
		}
		return nil, fmt.Errorf("failed to scan highest bid: %w", err)
	}
	return bid, nil
}

func scanBid(row pgx.CollectableRow) (*bids.Bid, error) {
	var bid bids.Bid
	err := row.Scan(
		&bid.ID,
		&bid.ItemID,
		&bid.UserID,
		&bid.Amount,
		&bid.Message,
		&bid.CreatedAt,
	)
	return &bid, err
}
