// Package notify fans accepted bids out to live subscribers of an item.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/metrics"
)

const DefaultBuffer = 16

// Subscriber receives the bids published for one item after it subscribed.
// There is no replay; a late subscriber fetches history from the store.
type Subscriber struct {
	itemID uuid.UUID
	ctx    context.Context
	ch     chan bids.BidView
	once   sync.Once
}

// Updates returns the delivery channel. It is closed on unsubscribe.
func (s *Subscriber) Updates() <-chan bids.BidView {
	return s.ch
}

// ItemID returns the item this subscriber follows.
func (s *Subscriber) ItemID() uuid.UUID {
	return s.itemID
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub is an in-memory registry of subscribers keyed by item id
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscriber]struct{}
	buffer int
	logger *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers interest in itemID. The subscription is pruned on the
// next publish once ctx is done, or immediately by Unsubscribe.
func (h *Hub) Subscribe(ctx context.Context, itemID uuid.UUID) *Subscriber {
	sub := &Subscriber{
		itemID: itemID,
		ctx:    ctx,
		ch:     make(chan bids.BidView, h.buffer),
	}

	h.mu.Lock()
	set, ok := h.subs[itemID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[itemID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	metrics.HubSubscribers.Inc()
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	removed := h.remove(sub)
	h.mu.Unlock()

	if removed {
		metrics.HubSubscribers.Dec()
	}
	sub.close()
}

// remove must be called with h.mu held
func (h *Hub) remove(sub *Subscriber) bool {
	set, ok := h.subs[sub.itemID]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.itemID)
	}
	return true
}

// Publish delivers view to every current subscriber of itemID without
// blocking. A full buffer drops the message for that subscriber; a
// subscriber whose context is done is pruned.
func (h *Hub) Publish(_ context.Context, itemID uuid.UUID, view bids.BidView) {
	var gone []*Subscriber

	h.mu.RLock()
	for sub := range h.subs[itemID] {
		if sub.ctx.Err() != nil {
			gone = append(gone, sub)
			continue
		}
		select {
		case sub.ch <- view:
		default:
			metrics.HubDropped.Inc()
			h.logger.Warn("Dropped bid for slow subscriber", "item_id", itemID, "bid_id", view.BidID)
		}
	}
	h.mu.RUnlock()

	for _, sub := range gone {
		h.Unsubscribe(sub)
	}
}

// Subscribers returns the number of live subscriptions for itemID.
func (h *Hub) Subscribers(itemID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[itemID])
}
