// Package websocket streams accepted bids of one item to browser clients.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/floroz/gavel-auctioneer/internal/notify"
)

// Route is the pattern the handler expects on an http.ServeMux
const Route = "GET /ws/items/{id}"

const defaultWriteTimeout = 5 * time.Second

// Subscriptions is the part of the hub a connection needs
type Subscriptions interface {
	Subscribe(ctx context.Context, itemID uuid.UUID) *notify.Subscriber
	Unsubscribe(sub *notify.Subscriber)
}

// BidMessage is the frame delivered for every accepted bid
type BidMessage struct {
	Bid               int64  `json:"bid"`
	Message           string `json:"message"`
	BidderDisplayName string `json:"bidderDisplayName"`
}

type Handler struct {
	hub            Subscriptions
	originPatterns []string
	writeTimeout   time.Duration
	logger         *slog.Logger
}

// NewHandler creates a live feed handler. originPatterns is passed to the
// handshake origin check; an empty list only allows same-origin clients.
func NewHandler(hub Subscriptions, originPatterns []string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:            hub,
		originPatterns: originPatterns,
		writeTimeout:   defaultWriteTimeout,
		logger:         logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("Websocket handshake failed", "item_id", itemID, "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen. CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sub := h.hub.Subscribe(ctx, itemID)
	defer h.hub.Unsubscribe(sub)

	h.logger.Debug("Live feed opened", "item_id", itemID)
	err = h.stream(ctx, conn, sub)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
		h.logger.Debug("Live feed closed by client", "item_id", itemID)
	default:
		h.logger.Warn("Live feed write failed", "item_id", itemID, "error", err)
	}
}

func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, sub *notify.Subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case view, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if err := h.write(ctx, conn, BidMessage{
				Bid:               view.Amount,
				Message:           view.Message,
				BidderDisplayName: view.BidderDisplayName,
			}); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, msg BidMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
