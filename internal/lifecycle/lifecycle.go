// Package lifecycle drives auctions to their closing. The Scheduler arms a
// best-effort in-process timer per item; the Sweeper periodically closes
// anything the timers missed and is what closure actually depends on.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
)

// Closer resolves one item; implemented by closing.Resolver
type Closer interface {
	Close(ctx context.Context, itemID uuid.UUID, trigger closing.Trigger) (closing.Resolution, error)
}

// OverdueLister finds open items whose deadline has passed
type OverdueLister interface {
	ListOpenOverdueItems(ctx context.Context, now time.Time, after *items.OverdueCursor, limit int) ([]*items.Item, error)
}
