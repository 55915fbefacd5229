package items

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/floroz/gavel-auctioneer/pkg/clock"
)

// MockRepository is a mock implementation of Repository for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateItem(ctx context.Context, item *Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockRepository) GetItemByID(ctx context.Context, itemID uuid.UUID) (*Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockRepository) GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*Item, error) {
	args := m.Called(ctx, tx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockRepository) ListOpenItems(ctx context.Context, now time.Time, limit, offset int) ([]*Item, error) {
	args := m.Called(ctx, now, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Item), args.Error(1)
}

func (m *MockRepository) ListEndedItems(ctx context.Context, now time.Time, limit, offset int) ([]*Item, error) {
	args := m.Called(ctx, now, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Item), args.Error(1)
}

func (m *MockRepository) ListOpenOverdueItems(ctx context.Context, now time.Time, after *OverdueCursor, limit int) ([]*Item, error) {
	args := m.Called(ctx, now, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Item), args.Error(1)
}

// MockScheduler records armed deadlines
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Arm(itemID uuid.UUID, deadline time.Time) {
	m.Called(itemID, deadline)
}

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo *MockRepository, scheduler *MockScheduler) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, scheduler, clock.NewFake(testNow), 24*time.Hour, logger)
}

func TestService_CreateItem(t *testing.T) {
	ownerID := uuid.New()

	tests := []struct {
		name        string
		cmd         CreateItemCommand
		setupMock   func(*MockRepository, *MockScheduler)
		wantErr     error
		checkResult func(*testing.T, *Item)
	}{
		{
			name: "successfully lists item and arms its closing",
			cmd: CreateItemCommand{
				OwnerID:    ownerID,
				Name:       "  Vintage Guitar ",
				ImageRef:   "img_1700000000_abc123.jpg",
				StartPrice: 100,
			},
			setupMock: func(repo *MockRepository, scheduler *MockScheduler) {
				repo.On("CreateItem", mock.Anything, mock.AnythingOfType("*items.Item")).Return(nil)
				scheduler.On("Arm", mock.AnythingOfType("uuid.UUID"), testNow.Add(24*time.Hour)).Once()
			},
			checkResult: func(t *testing.T, item *Item) {
				assert.NotEqual(t, uuid.Nil, item.ID)
				assert.Equal(t, "Vintage Guitar", item.Name)
				assert.Equal(t, ownerID, item.OwnerID)
				assert.Equal(t, int64(100), item.StartPrice)
				assert.Equal(t, ItemStatusOpen, item.Status)
				assert.Nil(t, item.WinnerID)
				assert.Equal(t, testNow, item.CreatedAt)
				assert.Equal(t, testNow.Add(24*time.Hour), item.EndAt)
			},
		},
		{
			name:      "fails with zero start price",
			cmd:       CreateItemCommand{OwnerID: ownerID, Name: "Item", StartPrice: 0},
			setupMock: func(*MockRepository, *MockScheduler) {},
			wantErr:   ErrInvalidStartPrice,
		},
		{
			name:      "fails with negative start price",
			cmd:       CreateItemCommand{OwnerID: ownerID, Name: "Item", StartPrice: -100},
			setupMock: func(*MockRepository, *MockScheduler) {},
			wantErr:   ErrInvalidStartPrice,
		},
		{
			name:      "fails with blank name",
			cmd:       CreateItemCommand{OwnerID: ownerID, Name: "   ", StartPrice: 100},
			setupMock: func(*MockRepository, *MockScheduler) {},
			wantErr:   ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			scheduler := new(MockScheduler)
			tt.setupMock(repo, scheduler)

			item, err := newTestService(repo, scheduler).CreateItem(context.Background(), tt.cmd)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, item)
				scheduler.AssertNotCalled(t, "Arm", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				require.NotNil(t, item)
				tt.checkResult(t, item)
			}

			repo.AssertExpectations(t)
			scheduler.AssertExpectations(t)
		})
	}
}

func TestService_CreateItem_StoreFailureDoesNotArm(t *testing.T) {
	repo := new(MockRepository)
	scheduler := new(MockScheduler)
	repo.On("CreateItem", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	item, err := newTestService(repo, scheduler).CreateItem(context.Background(), CreateItemCommand{
		OwnerID:    uuid.New(),
		Name:       "Lamp",
		StartPrice: 10,
	})

	require.Error(t, err)
	assert.Nil(t, item)
	scheduler.AssertNotCalled(t, "Arm", mock.Anything, mock.Anything)
}

func TestService_GetItem(t *testing.T) {
	itemID := uuid.New()

	t.Run("found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetItemByID", mock.Anything, itemID).Return(&Item{ID: itemID, Status: ItemStatusOpen}, nil)

		item, err := newTestService(repo, new(MockScheduler)).GetItem(context.Background(), itemID)
		require.NoError(t, err)
		assert.Equal(t, itemID, item.ID)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetItemByID", mock.Anything, itemID).Return(nil, ErrItemNotFound)

		item, err := newTestService(repo, new(MockScheduler)).GetItem(context.Background(), itemID)
		assert.ErrorIs(t, err, ErrItemNotFound)
		assert.Nil(t, item)
	})

	t.Run("store failure is not reported as not found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetItemByID", mock.Anything, itemID).Return(nil, errors.New("timeout"))

		_, err := newTestService(repo, new(MockScheduler)).GetItem(context.Background(), itemID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrItemNotFound)
	})
}

func TestService_ListOpenItems_DefaultsPageSize(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListOpenItems", mock.Anything, testNow, defaultPageSize, 0).Return([]*Item{}, nil)

	list, err := newTestService(repo, new(MockScheduler)).ListOpenItems(context.Background(), ListItemsQuery{Limit: 0, Offset: -5})
	require.NoError(t, err)
	assert.Empty(t, list)
	repo.AssertExpectations(t)
}

func TestService_ListResults(t *testing.T) {
	winner := uuid.New()
	sold := &Item{ID: uuid.New(), Status: ItemStatusSold, WinnerID: &winner, CurrentHighestBid: 150}
	unsold := &Item{ID: uuid.New(), Status: ItemStatusUnsold}
	pending := &Item{ID: uuid.New(), Status: ItemStatusOpen, CurrentHighestBid: 300}

	repo := new(MockRepository)
	repo.On("ListEndedItems", mock.Anything, testNow, 10, 0).Return([]*Item{sold, unsold, pending}, nil)

	results, err := newTestService(repo, new(MockScheduler)).ListResults(context.Background(), ListItemsQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, ResultStatusSold, results[0].Status)
	assert.Equal(t, int64(150), results[0].WinningAmount)
	assert.Equal(t, ResultStatusUnsold, results[1].Status)
	assert.Zero(t, results[1].WinningAmount)
	assert.Equal(t, ResultStatusPending, results[2].Status)
	assert.Zero(t, results[2].WinningAmount, "an unresolved item has no winning amount yet")
}
