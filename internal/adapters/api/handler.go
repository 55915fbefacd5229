package api

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	"github.com/floroz/gavel-auctioneer/pkg/auth"
	"github.com/floroz/gavel-auctioneer/pkg/clock"
)

// ServiceName is the connect service all auction procedures live under
const ServiceName = "auction.v1.AuctionService"

// Procedure paths
const (
	PlaceBidProcedure    = "/" + ServiceName + "/PlaceBid"
	CreateItemProcedure  = "/" + ServiceName + "/CreateItem"
	GetItemProcedure     = "/" + ServiceName + "/GetItem"
	ListItemsProcedure   = "/" + ServiceName + "/ListItems"
	ListBidsProcedure    = "/" + ServiceName + "/ListBids"
	ListResultsProcedure = "/" + ServiceName + "/ListResults"
	GetBalanceProcedure  = "/" + ServiceName + "/GetBalance"
)

type ItemService interface {
	CreateItem(ctx context.Context, cmd items.CreateItemCommand) (*items.Item, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*items.Item, error)
	ListOpenItems(ctx context.Context, query items.ListItemsQuery) ([]*items.Item, error)
	ListResults(ctx context.Context, query items.ListItemsQuery) ([]items.Result, error)
}

type BidService interface {
	PlaceBid(ctx context.Context, cmd bids.PlaceBidCommand) (*bids.Bid, error)
	ListBids(ctx context.Context, itemID uuid.UUID) ([]*bids.Bid, error)
}

type BalanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AuctionHandler serves the auction API over connect
type AuctionHandler struct {
	items    ItemService
	bids     BidService
	balances BalanceReader
	clock    clock.Clock
	logger   *slog.Logger
}

func NewAuctionHandler(itemService ItemService, bidService BidService, balances BalanceReader, clk clock.Clock, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		items:    itemService,
		bids:     bidService,
		balances: balances,
		clock:    clk,
		logger:   logger,
	}
}

type unaryFunc func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

// Handler returns the path prefix and http.Handler for every procedure
func (h *AuctionHandler) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	routes := map[string]unaryFunc{
		PlaceBidProcedure:    h.PlaceBid,
		CreateItemProcedure:  h.CreateItem,
		GetItemProcedure:     h.GetItem,
		ListItemsProcedure:   h.ListItems,
		ListBidsProcedure:    h.ListBids,
		ListResultsProcedure: h.ListResults,
		GetBalanceProcedure:  h.GetBalance,
	}

	mux := http.NewServeMux()
	for procedure, fn := range routes {
		mux.Handle(procedure, connect.NewUnaryHandler[structpb.Struct, structpb.Struct](procedure, fn, opts...))
	}
	return "/" + ServiceName + "/", mux
}

// PlaceBid submits a bid as the authenticated caller
func (h *AuctionHandler) PlaceBid(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	caller, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	itemID, err := uuidField(req.Msg, "item_id")
	if err != nil {
		return nil, err
	}
	amount, err := intField(req.Msg, "amount")
	if err != nil {
		return nil, err
	}

	bid, err := h.bids.PlaceBid(ctx, bids.PlaceBidCommand{
		ItemID:     itemID,
		UserID:     caller.UserID,
		BidderName: caller.DisplayName,
		Amount:     amount,
		Message:    stringField(req.Msg, "message"),
	})
	if err != nil {
		return nil, h.fail(ctx, "PlaceBid", err)
	}

	res, err := newStruct(map[string]any{"bid": bidFields(bid)})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// CreateItem lists a new item owned by the caller
func (h *AuctionHandler) CreateItem(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	caller, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	startPrice, err := intField(req.Msg, "start_price")
	if err != nil {
		return nil, err
	}

	item, err := h.items.CreateItem(ctx, items.CreateItemCommand{
		OwnerID:    caller.UserID,
		Name:       stringField(req.Msg, "name"),
		ImageRef:   stringField(req.Msg, "image_ref"),
		StartPrice: startPrice,
	})
	if err != nil {
		return nil, h.fail(ctx, "CreateItem", err)
	}

	res, err := newStruct(map[string]any{"item": itemFields(item, h.clock.Now())})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// GetItem returns one item. Authenticated callers also learn whether they own it.
func (h *AuctionHandler) GetItem(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	itemID, err := uuidField(req.Msg, "id")
	if err != nil {
		return nil, err
	}

	item, err := h.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, h.fail(ctx, "GetItem", err)
	}

	fields := itemFields(item, h.clock.Now())
	if caller, ok := auth.GetIdentity(ctx); ok {
		fields["is_owner"] = item.IsOwnedBy(caller.UserID)
	}
	res, err := newStruct(map[string]any{"item": fields})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// ListItems returns the items still open for bidding
func (h *AuctionHandler) ListItems(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	query, err := pageQuery(req.Msg)
	if err != nil {
		return nil, err
	}

	list, err := h.items.ListOpenItems(ctx, query)
	if err != nil {
		return nil, h.fail(ctx, "ListItems", err)
	}

	now := h.clock.Now()
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = itemFields(item, now)
	}
	res, err := newStruct(map[string]any{"items": out})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// ListBids returns the bid history of an item, lowest first
func (h *AuctionHandler) ListBids(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	itemID, err := uuidField(req.Msg, "item_id")
	if err != nil {
		return nil, err
	}

	list, err := h.bids.ListBids(ctx, itemID)
	if err != nil {
		return nil, h.fail(ctx, "ListBids", err)
	}

	out := make([]any, len(list))
	for i, bid := range list {
		out[i] = bidFields(bid)
	}
	res, err := newStruct(map[string]any{"bids": out})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// ListResults returns ended items with their outcome
func (h *AuctionHandler) ListResults(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	query, err := pageQuery(req.Msg)
	if err != nil {
		return nil, err
	}

	results, err := h.items.ListResults(ctx, query)
	if err != nil {
		return nil, h.fail(ctx, "ListResults", err)
	}

	now := h.clock.Now()
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = resultFields(r, now)
	}
	res, err := newStruct(map[string]any{"results": out})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// GetBalance returns the caller's balance
func (h *AuctionHandler) GetBalance(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	caller, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := h.balances.GetBalance(ctx, caller.UserID)
	if err != nil {
		return nil, h.fail(ctx, "GetBalance", err)
	}

	res, err := newStruct(map[string]any{"balance": balance})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

func pageQuery(msg *structpb.Struct) (items.ListItemsQuery, error) {
	limit, err := intField(msg, "page_size")
	if err != nil {
		return items.ListItemsQuery{}, err
	}
	offset, err := intField(msg, "offset")
	if err != nil {
		return items.ListItemsQuery{}, err
	}
	if limit > 100 {
		limit = 100
	}
	return items.ListItemsQuery{Limit: int(limit), Offset: int(offset)}, nil
}

func (h *AuctionHandler) fail(ctx context.Context, op string, err error) error {
	cerr := toConnectError(err)
	if code := connect.CodeOf(cerr); code == connect.CodeInternal || code == connect.CodeUnavailable {
		h.logger.ErrorContext(ctx, "Request failed", "op", op, "error", err)
	}
	return cerr
}
