package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
)

// DefaultChannel is the Redis pub/sub channel accepted bids travel on
const DefaultChannel = "auction:bids"

type envelope struct {
	ItemID uuid.UUID    `json:"item_id"`
	View   bids.BidView `json:"view"`
}

// RedisBridge relays published bids through Redis so that subscribers
// connected to any API instance receive them. Every instance runs the bridge
// and delivers what it reads from the channel to its local Hub.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	channel string
	logger  *slog.Logger
}

func NewRedisBridge(client *redis.Client, hub *Hub, channel string, logger *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{
		client:  client,
		hub:     hub,
		channel: channel,
		logger:  logger,
	}
}

// Publish sends the bid to every instance. If Redis is unreachable the bid
// is still delivered to this instance's subscribers.
func (b *RedisBridge) Publish(ctx context.Context, itemID uuid.UUID, view bids.BidView) {
	payload, err := json.Marshal(envelope{ItemID: itemID, View: view})
	if err == nil {
		err = b.client.Publish(ctx, b.channel, payload).Err()
	}
	if err != nil {
		b.logger.Warn("Redis publish failed, delivering locally", "item_id", itemID, "error", err)
		b.hub.Publish(ctx, itemID, view)
	}
}

// Run consumes the channel until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("Redis bid bridge subscribed", "channel", b.channel)

	msgs := pubsub.Channel(redis.WithChannelHealthCheckInterval(30 * time.Second))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("Discarding malformed bid broadcast", "error", err)
				continue
			}
			b.hub.Publish(ctx, env.ItemID, env.View)
		}
	}
}
