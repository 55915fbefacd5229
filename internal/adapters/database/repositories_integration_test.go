//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/gavel-auctioneer/internal/adapters/database"
	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	pkgdb "github.com/floroz/gavel-auctioneer/pkg/database"
	"github.com/floroz/gavel-auctioneer/pkg/testhelpers"
)

func newItem(endAt time.Time) *items.Item {
	return &items.Item{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Name:       "Desk",
		StartPrice: 100,
		Status:     items.ItemStatusOpen,
		EndAt:      endAt,
		CreatedAt:  endAt.Add(-24 * time.Hour),
		UpdatedAt:  endAt.Add(-24 * time.Hour),
	}
}

func withTx(t *testing.T, db *testhelpers.TestDatabase, fn func(tx pgx.Tx)) {
	t.Helper()
	ctx := context.Background()
	tx, err := db.Pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	fn(tx)
	require.NoError(t, tx.Commit(ctx))
}

func TestPostgresItemRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db := testhelpers.NewTestDatabase(t)
	repo := database.NewPostgresItemRepository(db.Pool)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		db.Truncate(t)
		item := newItem(t0.Add(24 * time.Hour))
		require.NoError(t, repo.CreateItem(ctx, item))

		got, err := repo.GetItemByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.Name, got.Name)
		assert.Equal(t, items.ItemStatusOpen, got.Status)
		assert.Nil(t, got.WinnerID)
		assert.Nil(t, got.ClosedAt)
		assert.True(t, item.EndAt.Equal(got.EndAt))

		_, err = repo.GetItemByID(ctx, uuid.New())
		assert.ErrorIs(t, err, items.ErrItemNotFound)
	})

	t.Run("open, ended and overdue listings", func(t *testing.T) {
		db.Truncate(t)
		future := newItem(t0.Add(time.Hour))
		overdue := newItem(t0.Add(-time.Hour))
		atDeadline := newItem(t0)
		sold := newItem(t0.Add(-2 * time.Hour))
		for _, it := range []*items.Item{future, overdue, atDeadline, sold} {
			require.NoError(t, repo.CreateItem(ctx, it))
		}
		withTx(t, db, func(tx pgx.Tx) {
			winner := uuid.New()
			require.NoError(t, repo.CloseItem(ctx, tx, sold.ID, items.ItemStatusSold, &winner, t0))
		})

		open, err := repo.ListOpenItems(ctx, t0, 10, 0)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, future.ID, open[0].ID)

		due, err := repo.ListOpenOverdueItems(ctx, t0, nil, 10)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, overdue.ID, due[0].ID)
		assert.Equal(t, atDeadline.ID, due[1].ID)

		ended, err := repo.ListEndedItems(ctx, t0, 10, 0)
		require.NoError(t, err)
		assert.Len(t, ended, 3)
	})

	t.Run("overdue listing pages past the cursor", func(t *testing.T) {
		db.Truncate(t)
		first := newItem(t0.Add(-2 * time.Hour))
		second := newItem(t0.Add(-time.Hour))
		third := newItem(t0.Add(-time.Hour))
		for _, it := range []*items.Item{first, second, third} {
			require.NoError(t, repo.CreateItem(ctx, it))
		}

		page, err := repo.ListOpenOverdueItems(ctx, t0, nil, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, first.ID, page[0].ID)

		// first is still open, yet the cursor keeps it off the next page
		rest, err := repo.ListOpenOverdueItems(ctx, t0, items.CursorAfter(page[0]), 10)
		require.NoError(t, err)
		require.Len(t, rest, 2)
		assert.NotContains(t, []uuid.UUID{rest[0].ID, rest[1].ID}, first.ID)
		assert.ElementsMatch(t, []uuid.UUID{second.ID, third.ID}, []uuid.UUID{rest[0].ID, rest[1].ID})

		// items sharing end_at are split by id
		tail, err := repo.ListOpenOverdueItems(ctx, t0, items.CursorAfter(rest[0]), 10)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, rest[1].ID, tail[0].ID)
	})

	t.Run("raise highest bid is conditional", func(t *testing.T) {
		db.Truncate(t)
		item := newItem(t0.Add(time.Hour))
		require.NoError(t, repo.CreateItem(ctx, item))

		withTx(t, db, func(tx pgx.Tx) {
			require.NoError(t, repo.RaiseHighestBid(ctx, tx, item.ID, 150))
			assert.ErrorIs(t, repo.RaiseHighestBid(ctx, tx, item.ID, 150), bids.ErrBidTooLow)
			assert.ErrorIs(t, repo.RaiseHighestBid(ctx, tx, item.ID, 120), bids.ErrBidTooLow)
		})

		got, err := repo.GetItemByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(150), got.CurrentHighestBid)
	})

	t.Run("close item happens once", func(t *testing.T) {
		db.Truncate(t)
		item := newItem(t0)
		require.NoError(t, repo.CreateItem(ctx, item))

		first, second := uuid.New(), uuid.New()
		withTx(t, db, func(tx pgx.Tx) {
			require.NoError(t, repo.CloseItem(ctx, tx, item.ID, items.ItemStatusSold, &first, t0))
			assert.ErrorIs(t, repo.CloseItem(ctx, tx, item.ID, items.ItemStatusSold, &second, t0), closing.ErrAlreadyClosed)
			assert.ErrorIs(t, repo.CloseItem(ctx, tx, item.ID, items.ItemStatusUnsold, nil, t0), closing.ErrAlreadyClosed)
		})

		got, err := repo.GetItemByID(ctx, item.ID)
		require.NoError(t, err)
		require.NotNil(t, got.WinnerID)
		assert.Equal(t, first, *got.WinnerID)
		require.NotNil(t, got.ClosedAt)
	})
}

func TestPostgresBidRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db := testhelpers.NewTestDatabase(t)
	itemRepo := database.NewPostgresItemRepository(db.Pool)
	bidRepo := database.NewPostgresBidRepository(db.Pool)
	ctx := context.Background()

	item := newItem(t0)
	require.NoError(t, itemRepo.CreateItem(ctx, item))

	withTx(t, db, func(tx pgx.Tx) {
		_, err := bidRepo.GetHighestBid(ctx, tx, item.ID)
		assert.ErrorIs(t, err, closing.ErrNoBids)
	})

	withTx(t, db, func(tx pgx.Tx) {
		for _, amount := range []int64{150, 300, 200} {
			require.NoError(t, bidRepo.SaveBid(ctx, tx, &bids.Bid{
				ID: uuid.New(), ItemID: item.ID, UserID: uuid.New(), Amount: amount, Message: "hi", CreatedAt: t0,
			}))
		}
	})

	history, err := bidRepo.GetBidsByItemID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{150, 200, 300}, []int64{history[0].Amount, history[1].Amount, history[2].Amount})
	assert.Equal(t, "hi", history[0].Message)

	withTx(t, db, func(tx pgx.Tx) {
		top, err := bidRepo.GetHighestBid(ctx, tx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(300), top.Amount)
	})
}

func TestPostgresAccountRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db := testhelpers.NewTestDatabase(t)
	repo := database.NewPostgresAccountRepository(db.Pool)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, repo.CreateAccount(ctx, userID, "alice", 100))

	withTx(t, db, func(tx pgx.Tx) {
		require.NoError(t, repo.Debit(ctx, tx, userID, 40))
		assert.ErrorIs(t, repo.Debit(ctx, tx, uuid.New(), 40), closing.ErrAccountNotFound)
	})

	balance, err := repo.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	_, err = repo.GetBalance(ctx, uuid.New())
	assert.ErrorIs(t, err, closing.ErrAccountNotFound)
}

func TestPostgresTransactionManager_LockTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db := testhelpers.NewTestDatabase(t)
	repo := database.NewPostgresItemRepository(db.Pool)
	txManager := pkgdb.NewPostgresTransactionManager(db.Pool, 200*time.Millisecond)
	ctx := context.Background()

	item := newItem(t0)
	require.NoError(t, repo.CreateItem(ctx, item))

	holder, err := txManager.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = holder.Rollback(ctx) }()

	var setting string
	require.NoError(t, holder.QueryRow(ctx, "SHOW lock_timeout").Scan(&setting))
	assert.Equal(t, "200ms", setting)

	_, err = repo.GetItemByIDForUpdate(ctx, holder, item.ID)
	require.NoError(t, err)

	waiter, err := txManager.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = waiter.Rollback(ctx) }()

	start := time.Now()
	_, err = repo.GetItemByIDForUpdate(ctx, waiter, item.ID)
	require.Error(t, err)
	assert.True(t, pkgdb.IsTransient(err), "lock timeout should be retryable: %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
