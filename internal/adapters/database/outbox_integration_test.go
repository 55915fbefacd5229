//go:build integration

package database_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/gavel-auctioneer/internal/adapters/database"
	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	pkgdb "github.com/floroz/gavel-auctioneer/pkg/database"
	"github.com/floroz/gavel-auctioneer/pkg/events"
	"github.com/floroz/gavel-auctioneer/pkg/testhelpers"
)

func TestOutboxRelayPublishesBidEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	amqpURL := testhelpers.NewTestRabbitMQ(t)
	db := testhelpers.NewTestDatabase(t)
	h := newAuctionHouse(t, db)
	h.detachScheduler()

	// Consumer bound before anything is published
	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.ExchangeDeclare(events.Exchange, "topic", true, false, false, false, nil))
	q, err := ch.QueueDeclare("", false, false, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "bid.#", events.Exchange, false, nil))
	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	require.NoError(t, err)

	owner := h.newAccount(t, "owner", 0)
	item, err := h.items.CreateItem(ctx, items.CreateItemCommand{OwnerID: owner, Name: "Radio", StartPrice: 10})
	require.NoError(t, err)
	bid, err := h.bids.PlaceBid(ctx, bids.PlaceBidCommand{ItemID: item.ID, UserID: owner, BidderName: "owner", Amount: 25})
	require.NoError(t, err)

	pubConn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer pubConn.Close()
	publisher, err := events.NewRabbitMQPublisher(pubConn)
	require.NoError(t, err)
	defer publisher.Close()

	relay := events.NewOutboxRelay(
		database.NewPostgresOutboxRepository(db.Pool),
		publisher,
		pkgdb.NewPostgresTransactionManager(db.Pool, time.Second),
		10,
		50*time.Millisecond,
		events.Exchange,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = relay.Run(relayCtx) }()

	select {
	case msg := <-msgs:
		assert.Equal(t, events.EventTypeBidPlaced, msg.RoutingKey)
		payload := &structpb.Struct{}
		require.NoError(t, proto.Unmarshal(msg.Body, payload))
		assert.Equal(t, bid.ID.String(), payload.Fields["bid_id"].GetStringValue())
		assert.Equal(t, "25", payload.Fields["amount"].GetStringValue())
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for bid.placed")
	}

	require.Eventually(t, func() bool {
		var pending int
		err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM outbox_events WHERE status = 'pending'").Scan(&pending)
		return err == nil && pending == 0
	}, 5*time.Second, 100*time.Millisecond)
}
