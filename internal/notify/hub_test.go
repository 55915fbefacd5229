package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func view(itemID uuid.UUID, amount int64) bids.BidView {
	return bids.BidView{BidID: uuid.New(), ItemID: itemID, Amount: amount, BidderDisplayName: "alice"}
}

func TestHub_PublishReachesEverySubscriberOfTheItem(t *testing.T) {
	hub := newTestHub(4)
	itemID, otherID := uuid.New(), uuid.New()

	a := hub.Subscribe(context.Background(), itemID)
	b := hub.Subscribe(context.Background(), itemID)
	other := hub.Subscribe(context.Background(), otherID)

	hub.Publish(context.Background(), itemID, view(itemID, 150))

	for _, sub := range []*Subscriber{a, b} {
		select {
		case got := <-sub.Updates():
			assert.Equal(t, int64(150), got.Amount)
		default:
			t.Fatal("subscriber did not receive the bid")
		}
	}
	assert.Empty(t, other.Updates())
}

func TestHub_NoReplayForLateSubscribers(t *testing.T) {
	hub := newTestHub(4)
	itemID := uuid.New()

	hub.Publish(context.Background(), itemID, view(itemID, 150))
	late := hub.Subscribe(context.Background(), itemID)

	assert.Empty(t, late.Updates())
}

func TestHub_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	hub := newTestHub(1)
	itemID := uuid.New()
	slow := hub.Subscribe(context.Background(), itemID)
	fast := hub.Subscribe(context.Background(), itemID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 5; i++ {
			hub.Publish(context.Background(), itemID, view(itemID, 100+i))
			<-fast.Updates()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Only the first bid fitted in the slow subscriber's buffer
	got := <-slow.Updates()
	assert.Equal(t, int64(101), got.Amount)
	assert.Empty(t, slow.Updates())
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := newTestHub(4)
	itemID := uuid.New()
	sub := hub.Subscribe(context.Background(), itemID)
	require.Equal(t, 1, hub.Subscribers(itemID))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	assert.Equal(t, 0, hub.Subscribers(itemID))
	_, open := <-sub.Updates()
	assert.False(t, open)

	assert.NotPanics(t, func() { hub.Publish(context.Background(), itemID, view(itemID, 150)) })
}

func TestHub_PrunesDisconnectedSubscribers(t *testing.T) {
	hub := newTestHub(4)
	itemID := uuid.New()

	ctx, disconnect := context.WithCancel(context.Background())
	gone := hub.Subscribe(ctx, itemID)
	live := hub.Subscribe(context.Background(), itemID)
	disconnect()

	hub.Publish(context.Background(), itemID, view(itemID, 150))

	assert.Equal(t, 1, hub.Subscribers(itemID))
	assert.Len(t, live.Updates(), 1)
	_, open := <-gone.Updates()
	assert.False(t, open)
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	hub := newTestHub(64)
	itemID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe(context.Background(), itemID)
			hub.Unsubscribe(sub)
		}()
		go func(amount int64) {
			defer wg.Done()
			hub.Publish(context.Background(), itemID, view(itemID, amount))
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Subscribers(itemID))
}
