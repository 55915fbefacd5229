package items

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for item persistence
type Repository interface {
	// CreateItem creates a new auction item
	CreateItem(ctx context.Context, item *Item) error

	// GetItemByID retrieves an item by its ID, or ErrItemNotFound
	GetItemByID(ctx context.Context, itemID uuid.UUID) (*Item, error)

	// GetItemByIDForUpdate retrieves an item by its ID and locks the row until
	// the transaction ends. Bid acceptance and closing serialize on this lock.
	GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*Item, error)

	// ListOpenItems retrieves items still accepting bids at now, soonest deadline first
	ListOpenItems(ctx context.Context, now time.Time, limit, offset int) ([]*Item, error)

	// ListEndedItems retrieves items whose deadline is at or before now, newest first
	ListEndedItems(ctx context.Context, now time.Time, limit, offset int) ([]*Item, error)

	// ListOpenOverdueItems retrieves unresolved items whose deadline is at or
	// before now, ordered by (end_at, id) and strictly after the cursor when set
	ListOpenOverdueItems(ctx context.Context, now time.Time, after *OverdueCursor, limit int) ([]*Item, error)
}

// Scheduler arms the one-shot closing trigger for a newly listed item
type Scheduler interface {
	Arm(itemID uuid.UUID, deadline time.Time)
}
