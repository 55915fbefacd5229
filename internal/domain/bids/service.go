package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	"github.com/floroz/gavel-auctioneer/internal/metrics"
	"github.com/floroz/gavel-auctioneer/pkg/clock"
	"github.com/floroz/gavel-auctioneer/pkg/database"
	"github.com/floroz/gavel-auctioneer/pkg/events"
)

// Validation errors. ErrInvalidBidAmount is a malformed request; the rest are
// rejection reasons, checked in the order listed.
var (
	ErrInvalidBidAmount   = errors.New("bid amount must be positive")
	ErrItemNotFound       = items.ErrItemNotFound
	ErrBelowStartingPrice = errors.New("bid must be higher than the starting price")
	ErrAuctionClosed      = errors.New("auction has already ended")
	ErrBidTooLow          = errors.New("bid must be higher than the current highest bid")
)

// Reason maps a validation error to its rejection reason
func Reason(err error) (RejectReason, bool) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		return RejectNotFound, true
	case errors.Is(err, ErrBelowStartingPrice):
		return RejectBelowStartingPrice, true
	case errors.Is(err, ErrAuctionClosed):
		return RejectAuctionClosed, true
	case errors.Is(err, ErrBidTooLow):
		return RejectBidTooLow, true
	default:
		return "", false
	}
}

// validateBid applies the acceptance rules to a locked item; first failure wins
func validateBid(item *items.Item, amount int64, now time.Time) error {
	if amount <= item.StartPrice {
		return ErrBelowStartingPrice
	}
	if !item.AcceptsBidsAt(now) {
		return ErrAuctionClosed
	}
	if amount <= item.CurrentHighestBid {
		return ErrBidTooLow
	}
	return nil
}

// AuctionService accepts or rejects bids
type AuctionService struct {
	txManager  database.TransactionManager
	bidRepo    BidRepository
	itemRepo   ItemRepository
	outboxRepo OutboxRepository
	notifier   Notifier
	clock      clock.Clock
	logger     *slog.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(
	txManager database.TransactionManager,
	bidRepo BidRepository,
	itemRepo ItemRepository,
	outboxRepo OutboxRepository,
	notifier Notifier,
	clk clock.Clock,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		txManager:  txManager,
		bidRepo:    bidRepo,
		itemRepo:   itemRepo,
		outboxRepo: outboxRepo,
		notifier:   notifier,
		clock:      clk,
		logger:     logger,
	}
}

// PlaceBid validates and appends a bid. The item row lock serializes bids per
// item and the conditional raise of the highest bid backs it up, so two
// crossing bids can never both be accepted. Subscribers are notified only
// after the bid is committed.
func (s *AuctionService) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*Bid, error) {
	bid, err := s.placeBid(ctx, cmd)
	if err != nil {
		if reason, ok := Reason(err); ok {
			metrics.BidsRejected.WithLabelValues(string(reason)).Inc()
		}
		return nil, err
	}

	metrics.BidsAccepted.Inc()
	s.notifier.Publish(ctx, bid.ItemID, BidView{
		BidID:             bid.ID,
		ItemID:            bid.ItemID,
		Amount:            bid.Amount,
		Message:           bid.Message,
		BidderDisplayName: cmd.BidderName,
		PlacedAt:          bid.CreatedAt,
	})

	return bid, nil
}

func (s *AuctionService) placeBid(ctx context.Context, cmd PlaceBidCommand) (*Bid, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidBidAmount
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	item, err := s.itemRepo.GetItemByIDForUpdate(ctx, tx, cmd.ItemID)
	if err != nil {
		if errors.Is(err, items.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to lock item: %w", err)
	}

	// Read the clock after the lock is held so a bid that waited on the lock
	// past the deadline is refused
	now := s.clock.Now()
	if valErr := validateBid(item, cmd.Amount, now); valErr != nil {
		return nil, valErr
	}

	if raiseErr := s.itemRepo.RaiseHighestBid(ctx, tx, cmd.ItemID, cmd.Amount); raiseErr != nil {
		if errors.Is(raiseErr, ErrBidTooLow) {
			return nil, ErrBidTooLow
		}
		return nil, fmt.Errorf("failed to update highest bid: %w", raiseErr)
	}

	bid := &Bid{
		ID:        uuid.New(),
		ItemID:    cmd.ItemID,
		UserID:    cmd.UserID,
		Amount:    cmd.Amount,
		Message:   cmd.Message,
		CreatedAt: now,
	}

	if saveErr := s.bidRepo.SaveBid(ctx, tx, bid); saveErr != nil {
		return nil, fmt.Errorf("failed to save bid: %w", saveErr)
	}

	event, err := newBidPlacedEvent(bid, cmd.BidderName)
	if err != nil {
		return nil, err
	}
	if saveErr := s.outboxRepo.SaveEvent(ctx, tx, event); saveErr != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", saveErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	s.logger.Debug("Bid accepted", "item_id", bid.ItemID, "bid_id", bid.ID, "amount", bid.Amount)
	return bid, nil
}

// ListBids returns the bid history of an item so late subscribers can catch up
func (s *AuctionService) ListBids(ctx context.Context, itemID uuid.UUID) ([]*Bid, error) {
	list, err := s.bidRepo.GetBidsByItemID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return list, nil
}

func newBidPlacedEvent(bid *Bid, bidderName string) (*events.OutboxEvent, error) {
	payload, err := structpb.NewStruct(map[string]any{
		"bid_id":      bid.ID.String(),
		"item_id":     bid.ItemID.String(),
		"user_id":     bid.UserID.String(),
		"bidder_name": bidderName,
		"amount":      events.FormatAmount(bid.Amount),
		"message":     bid.Message,
		"created_at":  bid.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build bid event: %w", err)
	}
	return events.NewOutboxEvent(events.EventTypeBidPlaced, payload, bid.CreatedAt)
}
