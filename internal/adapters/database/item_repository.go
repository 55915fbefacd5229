package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	pkgdb "github.com/floroz/gavel-auctioneer/pkg/database"
)

const itemColumns = `id, owner_id, name, image_ref, start_price, current_highest_bid,
	status::text AS status, winner_id, closed_at, end_at, created_at, updated_at`

// PostgresItemRepository implements the item ports of the items, bids and
// closing packages
type PostgresItemRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresItemRepository(pool *pgxpool.Pool) *PostgresItemRepository {
	return &PostgresItemRepository{pool: pool}
}

// CreateItem inserts a new open item
func (r *PostgresItemRepository) CreateItem(ctx context.Context, item *items.Item) error {
	query := `
		INSERT INTO items (id, owner_id, name, image_ref, start_price, current_highest_bid,
			status, end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::item_status, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		item.ID,
		item.OwnerID,
		item.Name,
		item.ImageRef,
		item.StartPrice,
		item.CurrentHighestBid,
		item.Status,
		item.EndAt,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// GetItemByID retrieves an item by its ID (non-transactional read)
func (r *PostgresItemRepository) GetItemByID(ctx context.Context, itemID uuid.UUID) (*items.Item, error) {
	return r.getItemByID(ctx, r.pool, itemID, false)
}

// GetItemByIDForUpdate retrieves an item and locks its row until the
// transaction ends. Bids and closings on the same item queue up here.
func (r *PostgresItemRepository) GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*items.Item, error) {
	return r.getItemByID(ctx, tx, itemID, true)
}

func (r *PostgresItemRepository) getItemByID(ctx context.Context, db pkgdb.DBTX, itemID uuid.UUID, forUpdate bool) (*items.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := db.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[items.Item])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, items.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// ListOpenItems retrieves items still accepting bids, soonest deadline first
func (r *PostgresItemRepository) ListOpenItems(ctx context.Context, now time.Time, limit, offset int) ([]*items.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE status = 'open' AND end_at > $1
		ORDER BY end_at ASC, id
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, now, limit, offset)
}

// ListEndedItems retrieves items whose deadline has passed, newest deadline first
func (r *PostgresItemRepository) ListEndedItems(ctx context.Context, now time.Time, limit, offset int) ([]*items.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE end_at <= $1
		ORDER BY end_at DESC, id
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, now, limit, offset)
}

// ListOpenOverdueItems retrieves unresolved items whose deadline has passed,
// oldest deadline first. With a cursor the page starts strictly after it.
func (r *PostgresItemRepository) ListOpenOverdueItems(ctx context.Context, now time.Time, after *items.OverdueCursor, limit int) ([]*items.Item, error) {
	if after == nil {
		query := `SELECT ` + itemColumns + `
			FROM items
			WHERE status = 'open' AND end_at <= $1
			ORDER BY end_at ASC, id
			LIMIT $2`
		return r.list(ctx, query, now, limit)
	}

	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE status = 'open' AND end_at <= $1 AND (end_at, id) > ($2, $3)
		ORDER BY end_at ASC, id
		LIMIT $4`
	return r.list(ctx, query, now, after.EndAt, after.ID, limit)
}

func (r *PostgresItemRepository) list(ctx context.Context, query string, args ...any) ([]*items.Item, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	result, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[items.Item])
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}
	return result, nil
}

// RaiseHighestBid moves the highest bid up to amount only if amount beats
// the stored maximum and the item is still open.
func (r *PostgresItemRepository) RaiseHighestBid(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, amount int64) error {
	query := `
		UPDATE items
		SET current_highest_bid = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'open' AND current_highest_bid < $1 AND start_price < $1
	`
	result, err := tx.Exec(ctx, query, amount, itemID)
	if err != nil {
		return fmt.Errorf("failed to update highest bid: %w", err)
	}

	if result.RowsAffected() == 0 {
		return bids.ErrBidTooLow
	}
	return nil
}

// CloseItem records the resolution. The status predicate makes the write
// happen at most once per item.
func (r *PostgresItemRepository) CloseItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, status items.ItemStatus, winnerID *uuid.UUID, closedAt time.Time) error {
	query := `
		UPDATE items
		SET status = $1::item_status, winner_id = $2, closed_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'open'
	`
	result, err := tx.Exec(ctx, query, status, winnerID, closedAt, itemID)
	if err != nil {
		return fmt.Errorf("failed to close item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return closing.ErrAlreadyClosed
	}
	return nil
}
