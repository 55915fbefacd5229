package api

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	pkgdb "github.com/floroz/gavel-auctioneer/pkg/database"
)

// RejectReasonHeader carries the machine-readable reason of a refused bid
const RejectReasonHeader = "Bid-Reject-Reason"

// toConnectError maps domain and store errors onto connect codes
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	if reason, ok := bids.Reason(err); ok {
		code := connect.CodeFailedPrecondition
		if reason == bids.RejectNotFound {
			code = connect.CodeNotFound
		}
		cerr := connect.NewError(code, err)
		cerr.Meta().Set(RejectReasonHeader, string(reason))
		return cerr
	}

	switch {
	case errors.Is(err, items.ErrItemNotFound), errors.Is(err, closing.ErrAccountNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, bids.ErrInvalidBidAmount),
		errors.Is(err, items.ErrInvalidStartPrice),
		errors.Is(err, items.ErrInvalidName):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case pkgdb.IsTransient(err):
		return connect.NewError(connect.CodeUnavailable, errors.New("store unavailable, retry later"))
	default:
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
}
