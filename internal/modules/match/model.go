// README: Match aggregate; joint status/payment state machine definitions.
package match

import (
	"time"

	"bookferry/internal/types"
)

type Status string

const (
	StatusProposed  Status = "proposed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDisputed  Status = "disputed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentNone     PaymentStatus = "none"
	PaymentHeld     PaymentStatus = "held"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
)

// State is the joint (status, paymentStatus) pair; transitions are defined
// over the pair, never over status alone.
type State struct {
	Status  Status
	Payment PaymentStatus
}

func (s State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// Party distinguishes the two sides of a match.
type Party string

const (
	PartyRequester Party = "requester"
	PartyTraveler  Party = "traveler"
)

type Match struct {
	ID                 types.ID
	RequestID          types.ID
	TripID             types.ID
	Amount             types.Money
	Status             Status
	Payment            PaymentStatus
	PaymentSession     *string
	RequesterConfirmed bool
	TravelerConfirmed  bool
	StatusVersion      int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (m *Match) State() State {
	return State{Status: m.Status, Payment: m.Payment}
}

// Event is one row of the append-only audit trail. Matches are never
// deleted; the trail is how settlements are reconstructed later.
type Event struct {
	ID          int64
	MatchID     types.ID
	FromStatus  Status
	ToStatus    Status
	FromPayment PaymentStatus
	ToPayment   PaymentStatus
	ActorType   string
	ActorID     *types.ID
	CreatedAt   time.Time
}

// AllowedTransitions represents the match state flow (diagram) as code.
var AllowedTransitions = map[State][]State{
	{StatusProposed, PaymentNone}: {
		{StatusActive, PaymentHeld},      // payment confirmed
		{StatusCancelled, PaymentNone},   // withdrawn before payment
	},
	{StatusActive, PaymentHeld}: {
		{StatusCompleted, PaymentReleased}, // both parties confirmed delivery
		{StatusDisputed, PaymentHeld},      // either party disputed
	},
	{StatusDisputed, PaymentHeld}: {
		{StatusCompleted, PaymentReleased}, // admin resolved: release
		{StatusCancelled, PaymentRefunded}, // admin resolved: refund
	},
}

func CanTransition(from, to State) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
