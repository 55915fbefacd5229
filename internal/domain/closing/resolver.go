package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	"github.com/floroz/gavel-auctioneer/internal/metrics"
	"github.com/floroz/gavel-auctioneer/pkg/clock"
	"github.com/floroz/gavel-auctioneer/pkg/database"
	"github.com/floroz/gavel-auctioneer/pkg/events"
)

var (
	ErrItemNotFound    = items.ErrItemNotFound
	ErrNotYetDue       = errors.New("auction deadline has not passed")
	ErrAlreadyClosed   = errors.New("item is already closed")
	ErrNoBids          = errors.New("item has no bids")
	ErrAccountNotFound = errors.New("account not found")
)

// Resolver performs the one-time closing transition of an item. It is safe
// to call any number of times, from any process, for the same item.
type Resolver struct {
	txManager   database.TransactionManager
	itemRepo    ItemRepository
	bidRepo     BidRepository
	accountRepo AccountRepository
	outboxRepo  OutboxRepository
	clock       clock.Clock
	logger      *slog.Logger
}

func NewResolver(
	txManager database.TransactionManager,
	itemRepo ItemRepository,
	bidRepo BidRepository,
	accountRepo AccountRepository,
	outboxRepo OutboxRepository,
	clk clock.Clock,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		txManager:   txManager,
		itemRepo:    itemRepo,
		bidRepo:     bidRepo,
		accountRepo: accountRepo,
		outboxRepo:  outboxRepo,
		clock:       clk,
		logger:      logger,
	}
}

// Close resolves an overdue item. The winner assignment, the winner's debit
// and the closing event commit in one transaction, guarded by a conditional
// update on the item status, so a repeated call can neither reassign the
// winner nor debit twice. On error nothing is committed and the item stays
// eligible for the next sweep.
func (r *Resolver) Close(ctx context.Context, itemID uuid.UUID, trigger Trigger) (Resolution, error) {
	res, err := r.close(ctx, itemID)
	if err != nil {
		metrics.Closings.WithLabelValues(string(trigger), "error").Inc()
		return Resolution{}, err
	}

	metrics.Closings.WithLabelValues(string(trigger), string(res.Outcome)).Inc()
	switch res.Outcome {
	case OutcomeAlreadyClosed:
		r.logger.Debug("Item already closed", "item_id", itemID, "trigger", trigger)
	case OutcomeResolvedNoBids:
		r.logger.Info("Item closed without bids", "item_id", itemID, "trigger", trigger)
	default:
		r.logger.Info("Item sold", "item_id", itemID, "winner_id", res.WinnerID, "amount", res.Amount, "trigger", trigger)
	}
	if res.DebitFailed {
		metrics.DebitFailures.Inc()
		r.logger.Error("Winner debit failed, repair event emitted", "item_id", itemID, "winner_id", res.WinnerID, "amount", res.Amount)
	}

	return res, nil
}

func (r *Resolver) close(ctx context.Context, itemID uuid.UUID) (Resolution, error) {
	tx, err := r.txManager.BeginTx(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	item, err := r.itemRepo.GetItemByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		if errors.Is(err, items.ErrItemNotFound) {
			return Resolution{}, ErrItemNotFound
		}
		return Resolution{}, fmt.Errorf("failed to lock item: %w", err)
	}

	if item.IsResolved() {
		return alreadyClosed(item), nil
	}

	now := r.clock.Now()
	if !item.IsDueAt(now) {
		return Resolution{}, ErrNotYetDue
	}

	winning, err := r.bidRepo.GetHighestBid(ctx, tx, itemID)
	if errors.Is(err, ErrNoBids) {
		return r.closeUnsold(ctx, tx, item, now)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to get highest bid: %w", err)
	}

	winnerID := winning.UserID
	if err := r.itemRepo.CloseItem(ctx, tx, itemID, items.ItemStatusSold, &winnerID, now); err != nil {
		if errors.Is(err, ErrAlreadyClosed) {
			return Resolution{ItemID: itemID, Outcome: OutcomeAlreadyClosed}, nil
		}
		return Resolution{}, fmt.Errorf("failed to close item: %w", err)
	}

	res := Resolution{
		ItemID:   itemID,
		Outcome:  OutcomeResolved,
		WinnerID: &winnerID,
		Amount:   winning.Amount,
		ClosedAt: now,
	}

	if err := r.accountRepo.Debit(ctx, tx, winnerID, winning.Amount); err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return Resolution{}, fmt.Errorf("failed to debit winner: %w", err)
		}
		res.DebitFailed = true
		if err := r.saveEvent(ctx, tx, events.EventTypeAuctionDebitFailed, res); err != nil {
			return Resolution{}, err
		}
	}

	if err := r.saveEvent(ctx, tx, events.EventTypeAuctionClosed, res); err != nil {
		return Resolution{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Resolution{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func (r *Resolver) closeUnsold(ctx context.Context, tx pgx.Tx, item *items.Item, now time.Time) (Resolution, error) {
	if err := r.itemRepo.CloseItem(ctx, tx, item.ID, items.ItemStatusUnsold, nil, now); err != nil {
		if errors.Is(err, ErrAlreadyClosed) {
			return Resolution{ItemID: item.ID, Outcome: OutcomeAlreadyClosed}, nil
		}
		return Resolution{}, fmt.Errorf("failed to close item: %w", err)
	}

	res := Resolution{ItemID: item.ID, Outcome: OutcomeResolvedNoBids, ClosedAt: now}
	if err := r.saveEvent(ctx, tx, events.EventTypeAuctionClosed, res); err != nil {
		return Resolution{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Resolution{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func alreadyClosed(item *items.Item) Resolution {
	res := Resolution{ItemID: item.ID, Outcome: OutcomeAlreadyClosed, WinnerID: item.WinnerID}
	if item.Status == items.ItemStatusSold {
		res.Amount = item.CurrentHighestBid
	}
	if item.ClosedAt != nil {
		res.ClosedAt = *item.ClosedAt
	}
	return res
}

func (r *Resolver) saveEvent(ctx context.Context, tx pgx.Tx, eventType string, res Resolution) error {
	fields := map[string]any{
		"item_id":   res.ItemID.String(),
		"outcome":   string(res.Outcome),
		"amount":    events.FormatAmount(res.Amount),
		"closed_at": res.ClosedAt.Format(time.RFC3339Nano),
	}
	if res.WinnerID != nil {
		fields["winner_id"] = res.WinnerID.String()
	}

	payload, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	event, err := events.NewOutboxEvent(eventType, payload, res.ClosedAt)
	if err != nil {
		return err
	}
	if err := r.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
