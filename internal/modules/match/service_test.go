// README: Lifecycle service tests over an in-memory store and a fake gateway.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bookferry/internal/modules/matching"
	"bookferry/internal/modules/request"
	"bookferry/internal/modules/trip"
	"bookferry/internal/payment"
	"bookferry/internal/types"
)

// ---- in-memory fakes ----

type memRequests struct {
	mu sync.Mutex
	m  map[types.ID]*request.Request
}

func (s *memRequests) Get(_ context.Context, id types.ID) (*request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[id]
	if !ok {
		return nil, request.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *memRequests) cas(id types.ID, from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.m[id]; ok && string(r.Status) == from {
		r.Status = request.Status(to)
	}
}

func (s *memRequests) status(id types.ID) request.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[id].Status
}

func (s *memRequests) setStatus(id types.ID, st request.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id].Status = st
}

func (s *memRequests) statusIs(id types.ID, want string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[id]
	return ok && string(r.Status) == want
}

type memTrips struct {
	mu sync.Mutex
	m  map[types.ID]*trip.Trip
}

func (s *memTrips) Get(_ context.Context, id types.ID) (*trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[id]
	if !ok {
		return nil, trip.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *memTrips) cas(id types.ID, from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.m[id]; ok && string(t.Status) == from {
		t.Status = trip.Status(to)
	}
}

func (s *memTrips) status(id types.ID) trip.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[id].Status
}

func (s *memTrips) setStatus(id types.ID, st trip.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id].Status = st
}

func (s *memTrips) statusIs(id types.ID, want string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[id]
	return ok && string(t.Status) == want
}

// memStore mirrors the Postgres store's semantics: guarded writes, the live
// pairing constraint, and settle-before-visibility inside Apply. The mutex
// stands in for the row lock, so a concurrent applier blocks until the
// winner's batch is done and then fails the guard.
type memStore struct {
	mu       sync.Mutex
	matches  map[types.ID]*Match
	events   []Event
	requests *memRequests
	trips    *memTrips
}

func liveStatus(st Status) bool {
	return st == StatusProposed || st == StatusActive || st == StatusDisputed
}

func cloneMatch(m *Match) *Match {
	c := *m
	if m.PaymentSession != nil {
		s := *m.PaymentSession
		c.PaymentSession = &s
	}
	return &c
}

func (s *memStore) Create(_ context.Context, m *Match, actorID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.matches {
		if !liveStatus(other.Status) {
			continue
		}
		if other.TripID == m.TripID {
			return ErrAlreadyEngaged
		}
		if other.RequestID == m.RequestID && other.TripID == m.TripID {
			return ErrAlreadyEngaged
		}
	}
	s.matches[m.ID] = cloneMatch(m)
	s.events = append(s.events, Event{
		MatchID:   m.ID,
		ToStatus:  m.Status,
		ToPayment: m.Payment,
		ActorType: string(PartyRequester),
		ActorID:   &actorID,
		CreatedAt: m.CreatedAt,
	})
	return nil
}

func (s *memStore) Get(_ context.Context, id types.ID) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMatch(m), nil
}

func (s *memStore) SetPaymentSession(_ context.Context, id types.ID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return ErrNotFound
	}
	if m.PaymentSession != nil {
		return ErrConflict
	}
	m.PaymentSession = &ref
	return nil
}

func (s *memStore) SetConfirmed(_ context.Context, id types.ID, p Party) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.Status != StatusActive {
		return nil, ErrConflict
	}
	if p == PartyRequester {
		m.RequesterConfirmed = true
	} else {
		m.TravelerConfirmed = true
	}
	return cloneMatch(m), nil
}

func (s *memStore) Apply(ctx context.Context, t Transition, settle func(context.Context) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[t.MatchID]
	if !ok || m.State() != t.From || m.StatusVersion != t.Version {
		return false, nil
	}
	// Entity guards are as strict as the match guard, mirroring the SQL
	// store: a guard miss fails the whole batch before any settlement.
	if u := t.RequestUpdate; u != nil && !s.requests.statusIs(u.ID, u.From) {
		return false, fmt.Errorf("%w: request %s is not %q", ErrConflict, u.ID, u.From)
	}
	if u := t.TripUpdate; u != nil && !s.trips.statusIs(u.ID, u.From) {
		return false, fmt.Errorf("%w: trip %s is not %q", ErrConflict, u.ID, u.From)
	}
	if settle != nil {
		if err := settle(ctx); err != nil {
			return false, err
		}
	}
	m.Status = t.To.Status
	m.Payment = t.To.Payment
	m.StatusVersion++
	m.UpdatedAt = time.Now()
	if u := t.RequestUpdate; u != nil {
		s.requests.cas(u.ID, u.From, u.To)
	}
	if u := t.TripUpdate; u != nil {
		s.trips.cas(u.ID, u.From, u.To)
	}
	s.events = append(s.events, Event{
		MatchID:     t.MatchID,
		FromStatus:  t.From.Status,
		ToStatus:    t.To.Status,
		FromPayment: t.From.Payment,
		ToPayment:   t.To.Payment,
		ActorType:   t.ActorType,
		ActorID:     t.ActorID,
		CreatedAt:   time.Now(),
	})
	return true, nil
}

func (s *memStore) ListByStatus(_ context.Context, st Status) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Match
	for _, m := range s.matches {
		if m.Status == st {
			out = append(out, *cloneMatch(m))
		}
	}
	return out, nil
}

func (s *memStore) ListExpiredProposed(_ context.Context, before time.Time) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Match
	for _, m := range s.matches {
		if m.Status == StatusProposed && m.CreatedAt.Before(before) {
			out = append(out, *cloneMatch(m))
		}
	}
	return out, nil
}

func (s *memStore) LivePairs(_ context.Context) ([]matching.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []matching.Pair
	for _, m := range s.matches {
		if liveStatus(m.Status) {
			out = append(out, matching.Pair{RequestID: m.RequestID, TripID: m.TripID})
		}
	}
	return out, nil
}

type fakeGateway struct {
	mu            sync.Mutex
	holds         int
	confirms      int
	releases      int
	refunds       int
	confirmStatus payment.HoldStatus
	releaseErr    error
	refundErr     error
}

func (g *fakeGateway) CreateHold(_ context.Context, _ types.Money, _ string, _ types.ID) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holds++
	return fmt.Sprintf("sess-%d", g.holds), nil
}

func (g *fakeGateway) ConfirmHold(_ context.Context, _ string) (payment.HoldStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms++
	return g.confirmStatus, nil
}

func (g *fakeGateway) Release(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.releaseErr != nil {
		return g.releaseErr
	}
	g.releases++
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds++
	return nil
}

func (g *fakeGateway) settled() (releases, refunds int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.releases, g.refunds
}

// ---- fixture ----

const (
	requesterID = types.ID("alice")
	travelerID  = types.ID("bob")
	adminID     = types.ID("root")
)

type fixture struct {
	store    *memStore
	requests *memRequests
	trips    *memTrips
	gateway  *fakeGateway
	svc      *Service
}

func newFixture() *fixture {
	reqs := &memRequests{m: map[types.ID]*request.Request{}}
	trips := &memTrips{m: map[types.ID]*trip.Trip{}}
	store := &memStore{matches: map[types.ID]*Match{}, requests: reqs, trips: trips}
	gw := &fakeGateway{confirmStatus: payment.HoldSucceeded}
	return &fixture{
		store:    store,
		requests: reqs,
		trips:    trips,
		gateway:  gw,
		svc:      NewService(store, reqs, trips, gw, 48*time.Hour),
	}
}

func (f *fixture) addRequest(id, owner types.ID, weight float64) {
	f.requests.mu.Lock()
	defer f.requests.mu.Unlock()
	f.requests.m[id] = &request.Request{
		ID:              id,
		UserID:          owner,
		DestinationCity: "Tehran",
		Deadline:        time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
		WeightKg:        weight,
		Books:           []request.BookItem{{Title: "A Book", Quantity: 1}},
		Status:          request.StatusOpen,
		CreatedAt:       time.Now(),
	}
}

func (f *fixture) addTrip(id, owner types.ID, capacity float64) {
	f.trips.mu.Lock()
	defer f.trips.mu.Unlock()
	f.trips.m[id] = &trip.Trip{
		ID:              id,
		UserID:          owner,
		DestinationCity: "tehran ",
		TravelDate:      time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC),
		CapacityKg:      capacity,
		Status:          trip.StatusOpen,
		CreatedAt:       time.Now(),
	}
}

func (f *fixture) propose(t *testing.T) *Match {
	t.Helper()
	m, err := f.svc.Propose(context.Background(), ProposeCommand{
		RequestID: "r1",
		TripID:    "t1",
		Actor:     requesterID,
		Amount:    types.Money{Amount: 5000, Currency: "USD"},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return m
}

// activate drives a match through payment to (active, held).
func (f *fixture) activate(t *testing.T) *Match {
	t.Helper()
	ctx := context.Background()
	m := f.propose(t)
	if _, err := f.svc.InitiatePayment(ctx, m.ID, requesterID); err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	m, err := f.svc.ConfirmPayment(ctx, m.ID)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return m
}

// dispute drives a match to (disputed, held).
func (f *fixture) dispute(t *testing.T) *Match {
	t.Helper()
	m := f.activate(t)
	m, err := f.svc.Dispute(context.Background(), m.ID, requesterID)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	return m
}

func newMatchedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture()
	f.addRequest("r1", requesterID, 0.5)
	f.addTrip("t1", travelerID, 2.0)
	return f
}

// ---- tests ----

func TestProposeHappyPath(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.propose(t)
	if m.State() != (State{StatusProposed, PaymentNone}) {
		t.Fatalf("new match state = %+v", m.State())
	}
	// Proposing does not bind the entities; only payment confirmation does.
	if f.requests.status("r1") != request.StatusOpen || f.trips.status("t1") != trip.StatusOpen {
		t.Fatal("propose must not change request or trip status")
	}
	pairs, err := f.svc.LivePairs(context.Background())
	if err != nil || len(pairs) != 1 {
		t.Fatalf("live pairs = %v, %v", pairs, err)
	}
}

func TestProposeRejections(t *testing.T) {
	f := newMatchedFixture(t)
	ctx := context.Background()

	_, err := f.svc.Propose(ctx, ProposeCommand{RequestID: "r1", TripID: "t1", Actor: requesterID})
	var v *types.ValidationError
	if !errors.As(err, &v) || v.Field != "amount" {
		t.Fatalf("zero amount: got %v", err)
	}

	_, err = f.svc.Propose(ctx, ProposeCommand{
		RequestID: "r1", TripID: "t1", Actor: travelerID,
		Amount: types.Money{Amount: 5000, Currency: "USD"},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner proposer: got %v", err)
	}

	f.addTrip("t-own", requesterID, 2.0)
	_, err = f.svc.Propose(ctx, ProposeCommand{
		RequestID: "r1", TripID: "t-own", Actor: requesterID,
		Amount: types.Money{Amount: 5000, Currency: "USD"},
	})
	if !errors.As(err, &v) || v.Field != "tripId" {
		t.Fatalf("self match: got %v", err)
	}

	f.addTrip("t-small", travelerID, 0.1)
	_, err = f.svc.Propose(ctx, ProposeCommand{
		RequestID: "r1", TripID: "t-small", Actor: requesterID,
		Amount: types.Money{Amount: 5000, Currency: "USD"},
	})
	if !errors.Is(err, ErrIncompatible) {
		t.Fatalf("undersized trip: got %v", err)
	}
}

func TestProposeDoubleBooking(t *testing.T) {
	f := newMatchedFixture(t)
	f.addRequest("r2", "carol", 0.5)
	f.propose(t)

	_, err := f.svc.Propose(context.Background(), ProposeCommand{
		RequestID: "r2", TripID: "t1", Actor: "carol",
		Amount: types.Money{Amount: 3000, Currency: "USD"},
	})
	if !errors.Is(err, ErrAlreadyEngaged) {
		t.Fatalf("second live match on trip: got %v", err)
	}
}

func TestInitiatePaymentSetOnce(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.propose(t)
	ctx := context.Background()

	ref1, err := f.svc.InitiatePayment(ctx, m.ID, requesterID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	ref2, err := f.svc.InitiatePayment(ctx, m.ID, requesterID)
	if err != nil {
		t.Fatalf("repeat initiate: %v", err)
	}
	if ref1 != ref2 {
		t.Fatalf("session ref changed: %q then %q", ref1, ref2)
	}
	if f.gateway.holds != 1 {
		t.Fatalf("opened %d holds, want 1", f.gateway.holds)
	}

	if _, err := f.svc.InitiatePayment(ctx, m.ID, travelerID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("traveler initiating payment: got %v", err)
	}
}

func TestConfirmPaymentActivates(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.activate(t)

	if m.State() != (State{StatusActive, PaymentHeld}) {
		t.Fatalf("state after payment = %+v", m.State())
	}
	if f.requests.status("r1") != request.StatusMatched {
		t.Fatalf("request status = %s", f.requests.status("r1"))
	}
	if f.trips.status("t1") != trip.StatusMatched {
		t.Fatalf("trip status = %s", f.trips.status("t1"))
	}

	// Idempotent confirmation.
	again, err := f.svc.ConfirmPayment(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if again.State() != m.State() || again.StatusVersion != m.StatusVersion {
		t.Fatal("repeat confirmation changed the match")
	}
	if f.gateway.confirms != 1 {
		t.Fatalf("queried the processor %d times, want 1", f.gateway.confirms)
	}
}

func TestConfirmPaymentOutcomes(t *testing.T) {
	ctx := context.Background()

	f := newMatchedFixture(t)
	m := f.propose(t)
	if _, err := f.svc.ConfirmPayment(ctx, m.ID); !errors.Is(err, ErrNoPaymentSession) {
		t.Fatalf("confirm without session: got %v", err)
	}

	f.gateway.confirmStatus = payment.HoldPending
	if _, err := f.svc.InitiatePayment(ctx, m.ID, requesterID); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, m.ID); !errors.Is(err, ErrPaymentPending) {
		t.Fatalf("pending hold: got %v", err)
	}

	f.gateway.confirmStatus = payment.HoldFailed
	if _, err := f.svc.ConfirmPayment(ctx, m.ID); !errors.Is(err, ErrHoldFailed) {
		t.Fatalf("failed hold: got %v", err)
	}

	// Neither outcome moved the match.
	got, err := f.svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State() != (State{StatusProposed, PaymentNone}) {
		t.Fatalf("state after failed confirmations = %+v", got.State())
	}
}

func TestDeliveryConfirmationCompletes(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.activate(t)
	ctx := context.Background()

	m, err := f.svc.ConfirmDelivery(ctx, m.ID, requesterID)
	if err != nil {
		t.Fatalf("requester confirm: %v", err)
	}
	if m.Status != StatusActive || !m.RequesterConfirmed || m.TravelerConfirmed {
		t.Fatalf("after one confirmation: %+v", m)
	}

	m, err = f.svc.ConfirmDelivery(ctx, m.ID, travelerID)
	if err != nil {
		t.Fatalf("traveler confirm: %v", err)
	}
	if m.State() != (State{StatusCompleted, PaymentReleased}) {
		t.Fatalf("state after both confirmations = %+v", m.State())
	}
	if f.trips.status("t1") != trip.StatusLocked {
		t.Fatalf("trip status = %s, want locked", f.trips.status("t1"))
	}
	if releases, _ := f.gateway.settled(); releases != 1 {
		t.Fatalf("released %d times, want 1", releases)
	}

	// The match is terminal now: nothing moves it.
	var it *InvalidTransitionError
	if _, err := f.svc.ConfirmDelivery(ctx, m.ID, requesterID); !errors.As(err, &it) {
		t.Fatalf("confirm after completion: got %v", err)
	}
	if _, err := f.svc.Dispute(ctx, m.ID, requesterID); !errors.As(err, &it) {
		t.Fatalf("dispute after completion: got %v", err)
	}
}

func TestDisputeHoldsFunds(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.dispute(t)

	if m.State() != (State{StatusDisputed, PaymentHeld}) {
		t.Fatalf("disputed state = %+v", m.State())
	}
	releases, refunds := f.gateway.settled()
	if releases != 0 || refunds != 0 {
		t.Fatal("dispute must not move funds")
	}

	// Disputing again is a no-op, not an error.
	again, err := f.svc.Dispute(context.Background(), m.ID, travelerID)
	if err != nil {
		t.Fatalf("repeat dispute: %v", err)
	}
	if again.StatusVersion != m.StatusVersion {
		t.Fatal("repeat dispute changed the match")
	}

	if _, err := f.svc.Dispute(context.Background(), m.ID, "stranger"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider dispute: got %v", err)
	}
}

func TestWithdrawReleasesReservation(t *testing.T) {
	f := newMatchedFixture(t)
	f.addRequest("r2", "carol", 0.5)
	m := f.propose(t)
	ctx := context.Background()

	m, err := f.svc.Withdraw(ctx, m.ID, travelerID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if m.State() != (State{StatusCancelled, PaymentNone}) {
		t.Fatalf("withdrawn state = %+v", m.State())
	}

	// The trip is free again for another request.
	if _, err := f.svc.Propose(ctx, ProposeCommand{
		RequestID: "r2", TripID: "t1", Actor: "carol",
		Amount: types.Money{Amount: 3000, Currency: "USD"},
	}); err != nil {
		t.Fatalf("propose after withdraw: %v", err)
	}
}

func TestWithdrawAfterPaymentRejected(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.activate(t)

	var it *InvalidTransitionError
	if _, err := f.svc.Withdraw(context.Background(), m.ID, requesterID); !errors.As(err, &it) {
		t.Fatalf("withdraw of active match: got %v", err)
	}
}

func TestResolveDisputeRelease(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.dispute(t)

	m, err := f.svc.ResolveDispute(context.Background(), m.ID, DecisionRelease, adminID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.State() != (State{StatusCompleted, PaymentReleased}) {
		t.Fatalf("resolved state = %+v", m.State())
	}
	if releases, refunds := f.gateway.settled(); releases != 1 || refunds != 0 {
		t.Fatalf("settlements = %d releases, %d refunds", releases, refunds)
	}
	if f.trips.status("t1") != trip.StatusLocked {
		t.Fatalf("trip status = %s, want locked", f.trips.status("t1"))
	}
}

func TestResolveDisputeRefundReopensRequest(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.dispute(t)

	m, err := f.svc.ResolveDispute(context.Background(), m.ID, DecisionRefund, adminID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.State() != (State{StatusCancelled, PaymentRefunded}) {
		t.Fatalf("resolved state = %+v", m.State())
	}
	if releases, refunds := f.gateway.settled(); releases != 0 || refunds != 1 {
		t.Fatalf("settlements = %d releases, %d refunds", releases, refunds)
	}
	if f.requests.status("r1") != request.StatusOpen {
		t.Fatalf("request status = %s, want open after refund", f.requests.status("r1"))
	}
}

func TestResolveDisputeExactlyOnce(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.dispute(t)
	ctx := context.Background()

	if _, err := f.svc.ResolveDispute(ctx, m.ID, DecisionRelease, adminID); err != nil {
		t.Fatalf("first resolution: %v", err)
	}

	_, err := f.svc.ResolveDispute(ctx, m.ID, DecisionRefund, adminID)
	var already *AlreadyResolvedError
	if !errors.As(err, &already) {
		t.Fatalf("second resolution: got %v", err)
	}
	if already.Current != (State{StatusCompleted, PaymentReleased}) {
		t.Fatalf("reported state = %+v", already.Current)
	}
	if releases, refunds := f.gateway.settled(); releases != 1 || refunds != 0 {
		t.Fatalf("settlements = %d releases, %d refunds; want exactly one release", releases, refunds)
	}
}

func TestResolveDisputeGatewayFailureIsRetryable(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.dispute(t)
	ctx := context.Background()
	before, err := f.svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	f.gateway.releaseErr = errors.New("processor down")
	_, err = f.svc.ResolveDispute(ctx, m.ID, DecisionRelease, adminID)
	var gw *PaymentGatewayError
	if !errors.As(err, &gw) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	after, err := f.svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.State() != before.State() || after.StatusVersion != before.StatusVersion {
		t.Fatalf("gateway failure changed the match: before %+v, after %+v", before, after)
	}

	// Same decision succeeds once the processor recovers.
	f.gateway.releaseErr = nil
	m, err = f.svc.ResolveDispute(ctx, m.ID, DecisionRelease, adminID)
	if err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if m.State() != (State{StatusCompleted, PaymentReleased}) {
		t.Fatalf("state after retry = %+v", m.State())
	}
}

func TestResolveDisputeDecisionValidation(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.dispute(t)

	_, err := f.svc.ResolveDispute(context.Background(), m.ID, Decision("split"), adminID)
	var v *types.ValidationError
	if !errors.As(err, &v) || v.Field != "decision" {
		t.Fatalf("unknown decision: got %v", err)
	}
}

func TestListDisputes(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.dispute(t)

	got, err := f.svc.ListDisputes(context.Background())
	if err != nil {
		t.Fatalf("list disputes: %v", err)
	}
	if len(got) != 1 || got[0].ID != m.ID {
		t.Fatalf("dispute queue = %+v", got)
	}
}

func TestSweepExpiredProposals(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.propose(t)
	ctx := context.Background()

	// First pass: the proposal is fresh.
	n, err := f.svc.SweepExpiredProposals(ctx)
	if err != nil || n != 0 {
		t.Fatalf("fresh sweep = %d, %v", n, err)
	}

	f.svc.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	n, err = f.svc.SweepExpiredProposals(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expired sweep = %d, %v", n, err)
	}
	got, err := f.svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State() != (State{StatusCancelled, PaymentNone}) {
		t.Fatalf("swept state = %+v", got.State())
	}

	// Idempotent: nothing left to sweep.
	n, err = f.svc.SweepExpiredProposals(ctx)
	if err != nil || n != 0 {
		t.Fatalf("repeat sweep = %d, %v", n, err)
	}
}

func TestConfirmPaymentAfterRequestWithdrawn(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.propose(t)
	ctx := context.Background()

	if _, err := f.svc.InitiatePayment(ctx, m.ID, requesterID); err != nil {
		t.Fatalf("initiate payment: %v", err)
	}

	// The request leaves the pool between payment creation and confirmation.
	f.requests.setStatus("r1", request.StatusWithdrawn)

	if _, err := f.svc.ConfirmPayment(ctx, m.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("confirm against withdrawn request: got %v", err)
	}

	// The whole batch rolled back: the match never activated and the trip
	// was never bound, so no funds are held against a withdrawn request.
	got, err := f.svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State() != (State{StatusProposed, PaymentNone}) {
		t.Fatalf("state after rejected confirmation = %+v", got.State())
	}
	if got.StatusVersion != m.StatusVersion {
		t.Fatal("rejected confirmation bumped the version")
	}
	if f.trips.status("t1") != trip.StatusOpen {
		t.Fatalf("trip status = %s, want open", f.trips.status("t1"))
	}
}

func TestConfirmPaymentAfterTripWithdrawn(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.propose(t)
	ctx := context.Background()

	if _, err := f.svc.InitiatePayment(ctx, m.ID, requesterID); err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	f.trips.setStatus("t1", trip.StatusWithdrawn)

	if _, err := f.svc.ConfirmPayment(ctx, m.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("confirm against withdrawn trip: got %v", err)
	}
	if f.requests.status("r1") != request.StatusOpen {
		t.Fatalf("request status = %s, want open", f.requests.status("r1"))
	}
}

func TestApplyRejectsUnlistedTransition(t *testing.T) {
	f := newMatchedFixture(t)
	m := f.propose(t)
	ctx := context.Background()

	// The transition table is the authority: a jump it does not list never
	// reaches the store, whatever the caller thinks it checked.
	applied, err := f.svc.apply(ctx, Transition{
		MatchID:   m.ID,
		From:      State{StatusProposed, PaymentNone},
		To:        State{StatusCompleted, PaymentReleased},
		Version:   m.StatusVersion,
		ActorType: "system",
	}, nil)
	var it *InvalidTransitionError
	if applied || !errors.As(err, &it) {
		t.Fatalf("unlisted transition: applied=%v err=%v", applied, err)
	}

	got, err := f.svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State() != (State{StatusProposed, PaymentNone}) || got.StatusVersion != m.StatusVersion {
		t.Fatalf("match moved: %+v", got)
	}
	if releases, refunds := f.gateway.settled(); releases != 0 || refunds != 0 {
		t.Fatal("unlisted transition reached the gateway")
	}
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{State{StatusProposed, PaymentNone}, State{StatusActive, PaymentHeld}, true},
		{State{StatusProposed, PaymentNone}, State{StatusCancelled, PaymentNone}, true},
		{State{StatusActive, PaymentHeld}, State{StatusCompleted, PaymentReleased}, true},
		{State{StatusActive, PaymentHeld}, State{StatusDisputed, PaymentHeld}, true},
		{State{StatusDisputed, PaymentHeld}, State{StatusCancelled, PaymentRefunded}, true},
		{State{StatusProposed, PaymentNone}, State{StatusCompleted, PaymentReleased}, false},
		{State{StatusActive, PaymentHeld}, State{StatusCancelled, PaymentRefunded}, false},
		{State{StatusCompleted, PaymentReleased}, State{StatusDisputed, PaymentHeld}, false},
		{State{StatusCancelled, PaymentRefunded}, State{StatusActive, PaymentHeld}, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%+v, %+v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
