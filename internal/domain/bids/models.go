package bids

import (
	"time"

	"github.com/google/uuid"
)

// Bid is one bidder's offer on one item. Bids are append-only.
type Bid struct {
	ID        uuid.UUID `db:"id"`
	ItemID    uuid.UUID `db:"item_id"`
	UserID    uuid.UUID `db:"user_id"`
	Amount    int64     `db:"amount"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// BidView is the accepted bid as shown to live subscribers of an item
type BidView struct {
	BidID             uuid.UUID `json:"bid_id"`
	ItemID            uuid.UUID `json:"item_id"`
	Amount            int64     `json:"amount"`
	Message           string    `json:"message"`
	BidderDisplayName string    `json:"bidder_display_name"`
	PlacedAt          time.Time `json:"placed_at"`
}

// PlaceBidCommand represents the command to place a bid
type PlaceBidCommand struct {
	ItemID     uuid.UUID
	UserID     uuid.UUID
	BidderName string
	Amount     int64
	Message    string
}

// RejectReason classifies why a bid was refused
type RejectReason string

const (
	RejectNotFound           RejectReason = "not_found"
	RejectBelowStartingPrice RejectReason = "below_starting_price"
	RejectAuctionClosed      RejectReason = "auction_closed"
	RejectBidTooLow          RejectReason = "bid_too_low"
)
