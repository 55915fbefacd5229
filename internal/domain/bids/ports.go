package bids

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	"github.com/floroz/gavel-auctioneer/pkg/events"
)

// BidRepository defines the interface for bid persistence
type BidRepository interface {
	// SaveBid appends a bid within a transaction
	SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// GetBidsByItemID retrieves all bids for an item in ascending amount order
	GetBidsByItemID(ctx context.Context, itemID uuid.UUID) ([]*Bid, error)
}

// ItemRepository is the part of item persistence bid acceptance needs
type ItemRepository interface {
	// GetItemByIDForUpdate locks the item row for the rest of the transaction
	GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*items.Item, error)

	// RaiseHighestBid sets the item's highest bid to amount iff amount exceeds
	// the stored maximum and the item is still open. It returns ErrBidTooLow
	// when the condition does not hold.
	RaiseHighestBid(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, amount int64) error
}

// OutboxRepository stores domain events in the bid transaction
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}

// Notifier delivers accepted bids to live subscribers of an item
type Notifier interface {
	Publish(ctx context.Context, itemID uuid.UUID, view BidView)
}
