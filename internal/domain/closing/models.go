package closing

import (
	"time"

	"github.com/google/uuid"
)

// Trigger identifies what invoked the resolver
type Trigger string

const (
	TriggerTimer Trigger = "timer"
	TriggerSweep Trigger = "sweep"
)

// Outcome is the result of a closing attempt
type Outcome string

const (
	// OutcomeResolved means a winner was assigned by this call
	OutcomeResolved Outcome = "resolved"
	// OutcomeResolvedNoBids means the item was closed without a winner by this call
	OutcomeResolvedNoBids Outcome = "resolved_no_bids"
	// OutcomeAlreadyClosed means an earlier call resolved the item; nothing changed
	OutcomeAlreadyClosed Outcome = "already_closed"
)

// Resolution describes the state of an item after Close
type Resolution struct {
	ItemID   uuid.UUID
	Outcome  Outcome
	WinnerID *uuid.UUID
	Amount   int64
	ClosedAt time.Time

	// DebitFailed is set when the winner was assigned but their account could
	// not be charged. The closing is committed and a repair event is emitted.
	DebitFailed bool
}
