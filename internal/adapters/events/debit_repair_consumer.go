package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/gavel-auctioneer/internal/domain/repair"
	pkgevents "github.com/floroz/gavel-auctioneer/pkg/events"
)

// DebitRepairQueue is the durable queue bound to auction.debit_failed
const DebitRepairQueue = "auction_debit_repair"

type DebitRepairer interface {
	RetryDebit(ctx context.Context, event repair.DebitFailedEvent) (repair.Result, error)
}

// DebitRepairConsumer retries winner debits announced by auction.debit_failed
type DebitRepairConsumer struct {
	conn    *amqp.Connection
	repairs DebitRepairer
	logger  *slog.Logger
}

func NewDebitRepairConsumer(conn *amqp.Connection, repairs DebitRepairer, logger *slog.Logger) *DebitRepairConsumer {
	return &DebitRepairConsumer{
		conn:    conn,
		repairs: repairs,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *DebitRepairConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := setupQueue(ch, DebitRepairQueue, pkgevents.EventTypeAuctionDebitFailed); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		DebitRepairQueue, // queue
		"",               // consumer tag
		false,            // auto-ack
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,              // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Debit repair consumer started", "queue", DebitRepairQueue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *DebitRepairConsumer) handle(ctx context.Context, d amqp.Delivery) {
	event, err := decodeDebitFailed(d)
	if err != nil {
		// A malformed message will never parse; drop it
		c.logger.Error("Failed to decode debit_failed event", "message_id", d.MessageId, "error", err)
		c.settle(d.Nack(false, false))
		return
	}

	result, err := c.repairs.RetryDebit(ctx, event)
	switch {
	case err == nil:
		c.logger.Info("Processed debit_failed event", "item_id", event.ItemID, "result", result)
		c.settle(d.Ack(false))
	case errors.Is(err, repair.ErrAccountStillMissing):
		// Rejected without requeue so a dead-letter policy on the queue can keep it
		c.logger.Error("Winner debit cannot be repaired",
			"item_id", event.ItemID, "winner_id", event.WinnerID, "amount", event.Amount)
		c.settle(d.Nack(false, false))
	default:
		c.logger.Error("Failed to repair winner debit", "item_id", event.ItemID, "error", err)
		c.settle(d.Nack(false, true))
	}
}

func (c *DebitRepairConsumer) settle(err error) {
	if err != nil {
		c.logger.Error("Failed to settle delivery", "error", err)
	}
}

func decodeDebitFailed(d amqp.Delivery) (repair.DebitFailedEvent, error) {
	eventID, err := uuid.Parse(d.MessageId)
	if err != nil {
		return repair.DebitFailedEvent{}, fmt.Errorf("invalid message id: %w", err)
	}

	var payload structpb.Struct
	if err := proto.Unmarshal(d.Body, &payload); err != nil {
		return repair.DebitFailedEvent{}, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	fields := payload.GetFields()

	itemID, err := uuid.Parse(fields["item_id"].GetStringValue())
	if err != nil {
		return repair.DebitFailedEvent{}, fmt.Errorf("invalid item_id: %w", err)
	}
	winnerID, err := uuid.Parse(fields["winner_id"].GetStringValue())
	if err != nil {
		return repair.DebitFailedEvent{}, fmt.Errorf("invalid winner_id: %w", err)
	}
	amount, err := pkgevents.ParseAmount(fields["amount"].GetStringValue())
	if err != nil {
		return repair.DebitFailedEvent{}, err
	}
	if amount <= 0 {
		return repair.DebitFailedEvent{}, errors.New("amount must be positive")
	}

	return repair.DebitFailedEvent{
		EventID:  eventID,
		ItemID:   itemID,
		WinnerID: winnerID,
		Amount:   amount,
	}, nil
}

func setupQueue(ch *amqp.Channel, queue, routingKey string) error {
	err := ch.ExchangeDeclare(
		pkgevents.Exchange, // name
		"topic",            // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	return ch.QueueBind(
		q.Name,             // queue name
		routingKey,         // routing key
		pkgevents.Exchange, // exchange
		false,
		nil,
	)
}
