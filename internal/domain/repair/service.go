// Package repair settles winner debits that could not be applied when the
// auction closed.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/metrics"
	"github.com/floroz/gavel-auctioneer/pkg/database"
)

// ErrAccountStillMissing means the winner has no account yet. The item stays
// sold; the debit needs operator attention.
var ErrAccountStillMissing = errors.New("winner account still missing")

// DebitFailedEvent is the auction.debit_failed event as seen by the consumer
type DebitFailedEvent struct {
	EventID  uuid.UUID
	ItemID   uuid.UUID
	WinnerID uuid.UUID
	Amount   int64
}

// Result of one repair attempt
type Result string

const (
	ResultRepaired  Result = "repaired"
	ResultDuplicate Result = "duplicate"
)

type AccountRepository interface {
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error
}

type ProcessedEventRepository interface {
	// IsEventProcessed checks if an event has already been applied
	IsEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (bool, error)

	// MarkEventProcessed records the event. A concurrent duplicate fails on commit.
	MarkEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error
}

type Service struct {
	txManager database.TransactionManager
	accounts  AccountRepository
	processed ProcessedEventRepository
	logger    *slog.Logger
}

func NewService(txManager database.TransactionManager, accounts AccountRepository, processed ProcessedEventRepository, logger *slog.Logger) *Service {
	return &Service{
		txManager: txManager,
		accounts:  accounts,
		processed: processed,
		logger:    logger,
	}
}

// RetryDebit applies the winner debit of event at most once per event id.
func (s *Service) RetryDebit(ctx context.Context, event DebitFailedEvent) (Result, error) {
	result, err := s.retryDebit(ctx, event)
	switch {
	case err == nil:
		metrics.DebitRepairs.WithLabelValues(string(result)).Inc()
	case errors.Is(err, ErrAccountStillMissing):
		metrics.DebitRepairs.WithLabelValues("unrecoverable").Inc()
	default:
		metrics.DebitRepairs.WithLabelValues("error").Inc()
	}
	return result, err
}

func (s *Service) retryDebit(ctx context.Context, event DebitFailedEvent) (Result, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	done, err := s.processed.IsEventProcessed(ctx, tx, event.EventID)
	if err != nil {
		return "", fmt.Errorf("failed to check idempotency: %w", err)
	}
	if done {
		return ResultDuplicate, nil
	}

	if err := s.accounts.Debit(ctx, tx, event.WinnerID, event.Amount); err != nil {
		if errors.Is(err, closing.ErrAccountNotFound) {
			return "", ErrAccountStillMissing
		}
		return "", fmt.Errorf("failed to debit winner: %w", err)
	}

	if err := s.processed.MarkEventProcessed(ctx, tx, event.EventID); err != nil {
		return "", fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Winner debit repaired", "item_id", event.ItemID, "winner_id", event.WinnerID, "amount", event.Amount)
	return ResultRepaired, nil
}
