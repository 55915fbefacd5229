package items

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/gavel-auctioneer/pkg/clock"
)

// Service errors
var (
	ErrInvalidStartPrice = errors.New("start price must be greater than 0")
	ErrInvalidName       = errors.New("item name is required")
	ErrItemNotFound      = errors.New("item not found")
)

// DefaultAuctionDuration is the bidding window of a listing
const DefaultAuctionDuration = 24 * time.Hour

const defaultPageSize = 20

// CreateItemCommand represents the command to list a new item
type CreateItemCommand struct {
	OwnerID    uuid.UUID
	Name       string
	ImageRef   string
	StartPrice int64
}

// ListItemsQuery represents pagination parameters for listing items
type ListItemsQuery struct {
	Limit  int
	Offset int
}

func (q ListItemsQuery) normalize() ListItemsQuery {
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Service implements listing and item queries
type Service struct {
	repo      Repository
	scheduler Scheduler
	clock     clock.Clock
	duration  time.Duration
	logger    *slog.Logger
}

// NewService creates a new item service. duration is the fixed bidding window
// applied to every listing.
func NewService(repo Repository, scheduler Scheduler, clk clock.Clock, duration time.Duration, logger *slog.Logger) *Service {
	if duration <= 0 {
		duration = DefaultAuctionDuration
	}
	return &Service{
		repo:      repo,
		scheduler: scheduler,
		clock:     clk,
		duration:  duration,
		logger:    logger,
	}
}

// CreateItem persists a new listing and arms its closing trigger
func (s *Service) CreateItem(ctx context.Context, cmd CreateItemCommand) (*Item, error) {
	if cmd.StartPrice <= 0 {
		return nil, ErrInvalidStartPrice
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	now := s.clock.Now()
	item := &Item{
		ID:                uuid.New(),
		OwnerID:           cmd.OwnerID,
		Name:              name,
		ImageRef:          cmd.ImageRef,
		StartPrice:        cmd.StartPrice,
		CurrentHighestBid: 0,
		Status:            ItemStatusOpen,
		EndAt:             now.Add(s.duration),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	// Arming happens only after the row is durable; the sweep covers a lost timer
	s.scheduler.Arm(item.ID, item.EndAt)
	s.logger.Info("Item listed", "item_id", item.ID, "owner_id", item.OwnerID, "end_at", item.EndAt)

	return item, nil
}

// GetItem retrieves an item by ID
func (s *Service) GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error) {
	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// ListOpenItems retrieves items still accepting bids
func (s *Service) ListOpenItems(ctx context.Context, query ListItemsQuery) ([]*Item, error) {
	query = query.normalize()
	list, err := s.repo.ListOpenItems(ctx, s.clock.Now(), query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return list, nil
}

// ListResults retrieves items whose bidding window has elapsed, with their outcome
func (s *Service) ListResults(ctx context.Context, query ListItemsQuery) ([]Result, error) {
	query = query.normalize()
	ended, err := s.repo.ListEndedItems(ctx, s.clock.Now(), query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	results := make([]Result, len(ended))
	for i, item := range ended {
		results[i] = ResultFor(item)
	}
	return results, nil
}
