// README: Match lifecycle service: guarded transitions, escrow settlement, dispute resolution.
package match

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"bookferry/internal/modules/matching"
	"bookferry/internal/modules/request"
	"bookferry/internal/modules/trip"
	"bookferry/internal/payment"
	"bookferry/internal/types"
)

// EntityUpdate is a status-guarded write on a request or trip applied in
// the same atomic batch as the match transition.
type EntityUpdate struct {
	ID   types.ID
	From string
	To   string
}

// Transition describes one row of the state table applied to a concrete
// match. Version carries the compare-and-swap expectation: the store writes
// only if the match still has this status, payment status, and version.
type Transition struct {
	MatchID       types.ID
	From          State
	To            State
	Version       int
	RequestUpdate *EntityUpdate
	TripUpdate    *EntityUpdate
	ActorType     string
	ActorID       *types.ID
}

// Store is the persistence contract for matches. Apply must be atomic: the
// guarded match write, the entity updates, the audit event, and the settle
// callback either all take effect or none do. A settle error aborts the
// whole batch with the match left in its prior state; so does an entity
// update whose status guard misses, surfaced as ErrConflict.
type Store interface {
	Create(ctx context.Context, m *Match, actorID types.ID) error
	Get(ctx context.Context, id types.ID) (*Match, error)
	SetPaymentSession(ctx context.Context, id types.ID, ref string) error
	SetConfirmed(ctx context.Context, id types.ID, p Party) (*Match, error)
	Apply(ctx context.Context, t Transition, settle func(context.Context) error) (bool, error)
	ListByStatus(ctx context.Context, st Status) ([]Match, error)
	ListExpiredProposed(ctx context.Context, before time.Time) ([]Match, error)
	LivePairs(ctx context.Context) ([]matching.Pair, error)
}

// RequestSource resolves the request side of a match.
type RequestSource interface {
	Get(ctx context.Context, id types.ID) (*request.Request, error)
}

// TripSource resolves the trip side of a match.
type TripSource interface {
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
}

type Service struct {
	store       Store
	requests    RequestSource
	trips       TripSource
	gateway     payment.Gateway
	proposalTTL time.Duration
	now         func() time.Time
}

func NewService(store Store, requests RequestSource, trips TripSource, gateway payment.Gateway, proposalTTL time.Duration) *Service {
	return &Service{
		store:       store,
		requests:    requests,
		trips:       trips,
		gateway:     gateway,
		proposalTTL: proposalTTL,
		now:         time.Now,
	}
}

type ProposeCommand struct {
	RequestID types.ID
	TripID    types.ID
	Actor     types.ID
	Amount    types.Money
}

// Propose creates a (proposed, none) match. The requester proposes and names
// the amount they will escrow; the traveler accepts implicitly when payment
// completes. The store's partial unique indexes reject a second live match
// for the pair or for the trip.
func (s *Service) Propose(ctx context.Context, cmd ProposeCommand) (*Match, error) {
	if !cmd.Amount.IsPositive() {
		return nil, types.Invalid("amount", "must be positive")
	}
	r, err := s.requests.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	t, err := s.trips.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if r.UserID != cmd.Actor {
		return nil, ErrForbidden
	}
	if r.UserID == t.UserID {
		return nil, types.Invalid("tripId", "must not belong to the requester")
	}
	if r.Status != request.StatusOpen || t.Status != trip.StatusOpen {
		return nil, ErrNotOpen
	}
	// Re-check the engine predicate before committing capacity.
	if !matching.Compatible(*r, *t) {
		return nil, ErrIncompatible
	}

	now := s.now()
	m := &Match{
		ID:        types.ID(uuid.NewString()),
		RequestID: cmd.RequestID,
		TripID:    cmd.TripID,
		Amount:    cmd.Amount,
		Status:    StatusProposed,
		Payment:   PaymentNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, m, cmd.Actor); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Match, error) {
	return s.store.Get(ctx, id)
}

// InitiatePayment opens a checkout session for a proposed match. The session
// ref is set once; repeated calls return the existing ref instead of opening
// a second hold.
func (s *Service) InitiatePayment(ctx context.Context, id, actor types.ID) (string, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	r, err := s.requests.Get(ctx, m.RequestID)
	if err != nil {
		return "", err
	}
	if r.UserID != actor {
		return "", ErrForbidden
	}
	if m.State() != (State{StatusProposed, PaymentNone}) {
		return "", &InvalidTransitionError{From: m.State(), Attempted: State{StatusActive, PaymentHeld}}
	}
	if m.PaymentSession != nil {
		return *m.PaymentSession, nil
	}

	ref, err := s.gateway.CreateHold(ctx, m.Amount, string(actor), m.ID)
	if err != nil {
		return "", &PaymentGatewayError{Op: "createHold", Err: err}
	}
	if err := s.store.SetPaymentSession(ctx, m.ID, ref); err != nil {
		// Lost a set-once race; the stored ref wins.
		if errors.Is(err, ErrConflict) {
			if m, err = s.store.Get(ctx, id); err == nil && m.PaymentSession != nil {
				return *m.PaymentSession, nil
			}
		}
		return "", err
	}
	return ref, nil
}

// ConfirmPayment asks the processor for the hold outcome and, on success,
// applies (proposed, none) -> (active, held), binding request and trip.
// Idempotent: confirming an already-active match returns it unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, id types.ID) (*Match, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.State() == (State{StatusActive, PaymentHeld}) {
		return m, nil
	}
	if m.State() != (State{StatusProposed, PaymentNone}) {
		return nil, &InvalidTransitionError{From: m.State(), Attempted: State{StatusActive, PaymentHeld}}
	}
	if m.PaymentSession == nil {
		return nil, ErrNoPaymentSession
	}

	status, err := s.gateway.ConfirmHold(ctx, *m.PaymentSession)
	if err != nil {
		return nil, &PaymentGatewayError{Op: "confirmHold", Err: err}
	}
	switch status {
	case payment.HoldPending:
		return nil, ErrPaymentPending
	case payment.HoldFailed:
		return nil, ErrHoldFailed
	}

	applied, err := s.apply(ctx, Transition{
		MatchID:       m.ID,
		From:          State{StatusProposed, PaymentNone},
		To:            State{StatusActive, PaymentHeld},
		Version:       m.StatusVersion,
		RequestUpdate: &EntityUpdate{ID: m.RequestID, From: string(request.StatusOpen), To: string(request.StatusMatched)},
		TripUpdate:    &EntityUpdate{ID: m.TripID, From: string(trip.StatusOpen), To: string(trip.StatusMatched)},
		ActorType:     "system",
	}, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

// ConfirmDelivery records one party's confirmation; when both parties have
// confirmed, the match completes and the gateway releases the hold to the
// traveler in the same atomic batch.
func (s *Service) ConfirmDelivery(ctx context.Context, id, actor types.ID) (*Match, error) {
	m, party, err := s.partyOf(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if m.State() != (State{StatusActive, PaymentHeld}) {
		return nil, &InvalidTransitionError{From: m.State(), Attempted: State{StatusCompleted, PaymentReleased}}
	}

	m, err = s.store.SetConfirmed(ctx, m.ID, party)
	if err != nil {
		return nil, err
	}
	if !(m.RequesterConfirmed && m.TravelerConfirmed) {
		return m, nil
	}

	session := m.PaymentSession
	applied, err := s.apply(ctx, Transition{
		MatchID:    m.ID,
		From:       State{StatusActive, PaymentHeld},
		To:         State{StatusCompleted, PaymentReleased},
		Version:    m.StatusVersion,
		TripUpdate: &EntityUpdate{ID: m.TripID, From: string(trip.StatusMatched), To: string(trip.StatusLocked)},
		ActorType:  string(party),
		ActorID:    &actor,
	}, func(ctx context.Context) error {
		if err := s.gateway.Release(ctx, *session); err != nil {
			return &PaymentGatewayError{Op: "release", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// The other party's confirmation raced us and completed the match.
		m, err = s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.State() == (State{StatusCompleted, PaymentReleased}) {
			return m, nil
		}
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

// Dispute moves an active match into adjudication. Funds stay held.
func (s *Service) Dispute(ctx context.Context, id, actor types.ID) (*Match, error) {
	m, party, err := s.partyOf(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if m.Status == StatusDisputed {
		return m, nil
	}
	if m.State() != (State{StatusActive, PaymentHeld}) {
		return nil, &InvalidTransitionError{From: m.State(), Attempted: State{StatusDisputed, PaymentHeld}}
	}
	applied, err := s.apply(ctx, Transition{
		MatchID:   m.ID,
		From:      State{StatusActive, PaymentHeld},
		To:        State{StatusDisputed, PaymentHeld},
		Version:   m.StatusVersion,
		ActorType: string(party),
		ActorID:   &actor,
	}, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

// Withdraw cancels a proposed match before payment. The request and trip
// were never marked matched at this stage; dropping the live match row is
// what releases the reservation, so no entity write is needed.
func (s *Service) Withdraw(ctx context.Context, id, actor types.ID) (*Match, error) {
	m, party, err := s.partyOf(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if m.State() != (State{StatusProposed, PaymentNone}) {
		return nil, &InvalidTransitionError{From: m.State(), Attempted: State{StatusCancelled, PaymentNone}}
	}
	applied, err := s.apply(ctx, Transition{
		MatchID:   m.ID,
		From:      State{StatusProposed, PaymentNone},
		To:        State{StatusCancelled, PaymentNone},
		Version:   m.StatusVersion,
		ActorType: string(party),
		ActorID:   &actor,
	}, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

type Decision string

const (
	DecisionRelease Decision = "release"
	DecisionRefund  Decision = "refund"
)

// ResolveDispute applies the administrator's verdict exactly once. The
// status guard claims the row before the gateway is called; a concurrent
// resolver loses the guard and gets AlreadyResolvedError without touching
// the gateway. A gateway failure aborts the batch, leaving the match
// disputed and the resolution retryable.
func (s *Service) ResolveDispute(ctx context.Context, id types.ID, decision Decision, admin types.ID) (*Match, error) {
	var to State
	switch decision {
	case DecisionRelease:
		to = State{StatusCompleted, PaymentReleased}
	case DecisionRefund:
		to = State{StatusCancelled, PaymentRefunded}
	default:
		return nil, types.Invalid("decision", "must be release or refund")
	}

	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.State() != (State{StatusDisputed, PaymentHeld}) {
		if m.State().Terminal() {
			return nil, &AlreadyResolvedError{Current: m.State()}
		}
		return nil, &InvalidTransitionError{From: m.State(), Attempted: to}
	}

	t := Transition{
		MatchID:    m.ID,
		From:       State{StatusDisputed, PaymentHeld},
		To:         to,
		Version:    m.StatusVersion,
		TripUpdate: &EntityUpdate{ID: m.TripID, From: string(trip.StatusMatched), To: string(trip.StatusLocked)},
		ActorType:  "admin",
		ActorID:    &admin,
	}
	session := m.PaymentSession
	var settle func(context.Context) error
	if decision == DecisionRelease {
		settle = func(ctx context.Context) error {
			if err := s.gateway.Release(ctx, *session); err != nil {
				return &PaymentGatewayError{Op: "release", Err: err}
			}
			return nil
		}
	} else {
		// Refund frees the request to seek another trip.
		t.RequestUpdate = &EntityUpdate{ID: m.RequestID, From: string(request.StatusMatched), To: string(request.StatusOpen)}
		settle = func(ctx context.Context) error {
			if err := s.gateway.Refund(ctx, *session); err != nil {
				return &PaymentGatewayError{Op: "refund", Err: err}
			}
			return nil
		}
	}

	applied, err := s.apply(ctx, t, settle)
	if err != nil {
		return nil, err
	}
	if !applied {
		m, err = s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &AlreadyResolvedError{Current: m.State()}
	}
	return s.store.Get(ctx, id)
}

// apply gates every transition through the AllowedTransitions table before
// handing it to the store. The table is the authority on the state flow; a
// transition it does not list never reaches persistence or the gateway,
// whatever per-operation checks concluded.
func (s *Service) apply(ctx context.Context, t Transition, settle func(context.Context) error) (bool, error) {
	if !CanTransition(t.From, t.To) {
		return false, &InvalidTransitionError{From: t.From, Attempted: t.To}
	}
	return s.store.Apply(ctx, t, settle)
}

// ListDisputes returns the adjudication queue.
func (s *Service) ListDisputes(ctx context.Context) ([]Match, error) {
	return s.store.ListByStatus(ctx, StatusDisputed)
}

// SweepExpiredProposals cancels proposed matches that never saw payment
// confirmation within the policy window. Goes through the same guarded
// transition, so it is idempotent and safe alongside user actions.
func (s *Service) SweepExpiredProposals(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.proposalTTL)
	expired, err := s.store.ListExpiredProposed(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range expired {
		m := &expired[i]
		applied, err := s.apply(ctx, Transition{
			MatchID:   m.ID,
			From:      State{StatusProposed, PaymentNone},
			To:        State{StatusCancelled, PaymentNone},
			Version:   m.StatusVersion,
			ActorType: "system",
		}, nil)
		if err != nil {
			return swept, err
		}
		if applied {
			swept++
		}
	}
	return swept, nil
}

// RunExpirySweep drives SweepExpiredProposals on a ticker until ctx ends.
func (s *Service) RunExpirySweep(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpiredProposals(ctx)
			if err != nil {
				log.Printf("match: expiry sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("match: expiry sweep cancelled %d stale proposals", n)
			}
		}
	}
}

// LivePairs exposes the non-terminal pair set to the matching service.
func (s *Service) LivePairs(ctx context.Context) ([]matching.Pair, error) {
	return s.store.LivePairs(ctx)
}

func (s *Service) partyOf(ctx context.Context, id, actor types.ID) (*Match, Party, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	r, err := s.requests.Get(ctx, m.RequestID)
	if err != nil {
		return nil, "", err
	}
	if r.UserID == actor {
		return m, PartyRequester, nil
	}
	t, err := s.trips.Get(ctx, m.TripID)
	if err != nil {
		return nil, "", err
	}
	if t.UserID == actor {
		return m, PartyTraveler, nil
	}
	return nil, "", ErrForbidden
}
