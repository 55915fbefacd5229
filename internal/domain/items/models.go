package items

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus represents the resolution state of an item
type ItemStatus string

const (
	// ItemStatusOpen means no resolution has been recorded yet. An open item
	// past its deadline is still awaiting closure.
	ItemStatusOpen ItemStatus = "open"
	// ItemStatusSold means a winner was assigned and debited.
	ItemStatusSold ItemStatus = "sold"
	// ItemStatusUnsold means the auction closed without any bids.
	ItemStatusUnsold ItemStatus = "unsold"
)

// Item represents an auctioned good
type Item struct {
	ID                uuid.UUID  `db:"id"`
	OwnerID           uuid.UUID  `db:"owner_id"`
	Name              string     `db:"name"`
	ImageRef          string     `db:"image_ref"`
	StartPrice        int64      `db:"start_price"`
	CurrentHighestBid int64      `db:"current_highest_bid"` // 0 until the first bid
	Status            ItemStatus `db:"status"`
	WinnerID          *uuid.UUID `db:"winner_id"` // write-once, set only for sold items
	ClosedAt          *time.Time `db:"closed_at"`
	EndAt             time.Time  `db:"end_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// IsResolved reports whether the closing transition already happened
func (i *Item) IsResolved() bool {
	return i.Status != ItemStatusOpen
}

// AcceptsBidsAt reports whether a bid placed at now may be accepted
func (i *Item) AcceptsBidsAt(now time.Time) bool {
	return !i.IsResolved() && now.Before(i.EndAt)
}

// IsDueAt reports whether the item is open and its deadline has passed
func (i *Item) IsDueAt(now time.Time) bool {
	return !i.IsResolved() && !now.Before(i.EndAt)
}

// MinimumBid returns the amount a new bid has to exceed
func (i *Item) MinimumBid() int64 {
	if i.CurrentHighestBid > i.StartPrice {
		return i.CurrentHighestBid
	}
	return i.StartPrice
}

// IsOwnedBy checks if the given user is the owner of this item
func (i *Item) IsOwnedBy(userID uuid.UUID) bool {
	return i.OwnerID == userID
}

// OverdueCursor is the position of the last item of an overdue page. Paging
// resumes after it, so an item that stays open is not fetched again.
type OverdueCursor struct {
	EndAt time.Time
	ID    uuid.UUID
}

// CursorAfter returns the cursor positioned on item
func CursorAfter(item *Item) *OverdueCursor {
	return &OverdueCursor{EndAt: item.EndAt, ID: item.ID}
}

// ResultStatus is the status shown on the results page
type ResultStatus string

const (
	ResultStatusSold    ResultStatus = "sold"
	ResultStatusUnsold  ResultStatus = "unsold"
	ResultStatusPending ResultStatus = "pending"
)

// Result describes an item whose bidding window has elapsed
type Result struct {
	Item          *Item
	Status        ResultStatus
	WinningAmount int64 // zero unless sold
}

// ResultFor derives the result view of an ended item
func ResultFor(item *Item) Result {
	switch item.Status {
	case ItemStatusSold:
		return Result{Item: item, Status: ResultStatusSold, WinningAmount: item.CurrentHighestBid}
	case ItemStatusUnsold:
		return Result{Item: item, Status: ResultStatusUnsold}
	default:
		return Result{Item: item, Status: ResultStatusPending}
	}
}
