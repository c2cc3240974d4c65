// README: Trip aggregate: spare carrying capacity to a destination city on a date.
package trip

import (
	"time"

	"bookferry/internal/types"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusMatched   Status = "matched"
	// StatusLocked marks a trip whose capacity was consumed by a terminal
	// match. It is derived state, written by the match module in the same
	// transaction as the terminal transition; nothing else sets it.
	StatusLocked    Status = "locked"
	StatusWithdrawn Status = "withdrawn"
)

type Trip struct {
	ID              types.ID
	UserID          types.ID
	OriginCity      string
	DestinationCity string
	TravelDate      time.Time
	CapacityKg      float64
	Status          Status
	CreatedAt       time.Time
}

// Validate checks the structural invariants of a trip, on caller input and
// on rows scanned back from the store alike.
func (t *Trip) Validate() error {
	if t.UserID == "" {
		return types.Invalid("userId", "is required")
	}
	if t.DestinationCity == "" {
		return types.Invalid("destinationCity", "is required")
	}
	if t.CapacityKg <= 0 {
		return types.Invalid("capacityKg", "must be positive")
	}
	if t.TravelDate.IsZero() {
		return types.Invalid("travelDate", "is required")
	}
	return nil
}
