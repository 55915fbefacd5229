package api

import (
	"errors"
	"fmt"
	"math"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
)

// Request and response bodies are google.protobuf.Struct messages keyed by
// snake_case field names.

func invalidArgument(format string, args ...any) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

func uuidField(msg *structpb.Struct, key string) (uuid.UUID, error) {
	v, ok := msg.GetFields()[key]
	if !ok {
		return uuid.Nil, invalidArgument("%s is required", key)
	}
	id, err := uuid.Parse(v.GetStringValue())
	if err != nil {
		return uuid.Nil, invalidArgument("invalid %s", key)
	}
	return id, nil
}

func stringField(msg *structpb.Struct, key string) string {
	return msg.GetFields()[key].GetStringValue()
}

// intField reads a whole number. Missing fields read as zero.
func intField(msg *structpb.Struct, key string) (int64, error) {
	v, ok := msg.GetFields()[key]
	if !ok {
		return 0, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, invalidArgument("%s must be a number", key)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, invalidArgument("%s must be a whole number", key)
	}
	return int64(f), nil
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to encode response"))
	}
	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func itemFields(item *items.Item, now time.Time) map[string]any {
	fields := map[string]any{
		"id":                  item.ID.String(),
		"owner_id":            item.OwnerID.String(),
		"name":                item.Name,
		"image_ref":           item.ImageRef,
		"start_price":         item.StartPrice,
		"current_highest_bid": item.CurrentHighestBid,
		"minimum_bid":         item.MinimumBid(),
		"status":              string(item.Status),
		"accepting_bids":      item.AcceptsBidsAt(now),
		"end_at":              formatTime(item.EndAt),
		"created_at":          formatTime(item.CreatedAt),
	}
	if item.WinnerID != nil {
		fields["winner_id"] = item.WinnerID.String()
	}
	if item.ClosedAt != nil {
		fields["closed_at"] = formatTime(*item.ClosedAt)
	}
	return fields
}

func bidFields(bid *bids.Bid) map[string]any {
	return map[string]any{
		"id":         bid.ID.String(),
		"item_id":    bid.ItemID.String(),
		"user_id":    bid.UserID.String(),
		"amount":     bid.Amount,
		"message":    bid.Message,
		"created_at": formatTime(bid.CreatedAt),
	}
}

func resultFields(r items.Result, now time.Time) map[string]any {
	fields := itemFields(r.Item, now)
	fields["result"] = string(r.Status)
	if r.Status == items.ResultStatusSold {
		fields["winning_amount"] = r.WinningAmount
	}
	return fields
}
