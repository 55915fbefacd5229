package closing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	"github.com/floroz/gavel-auctioneer/pkg/events"
)

// ItemRepository is the part of item persistence the resolver needs
type ItemRepository interface {
	// GetItemByIDForUpdate locks the item row for the rest of the transaction
	GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*items.Item, error)

	// CloseItem records the resolution iff the item is still open. It returns
	// ErrAlreadyClosed when no open row matched.
	CloseItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, status items.ItemStatus, winnerID *uuid.UUID, closedAt time.Time) error
}

// BidRepository reads the winning bid
type BidRepository interface {
	// GetHighestBid returns the highest bid of an item, or ErrNoBids
	GetHighestBid(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*bids.Bid, error)
}

// AccountRepository charges the winner
type AccountRepository interface {
	// Debit subtracts amount from the balance without a floor. It returns
	// ErrAccountNotFound when the user has no account.
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error
}

// OutboxRepository stores domain events in the closing transaction
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
