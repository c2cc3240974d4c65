// README: Request service: creation with validation, withdrawal, listing.
package request

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"bookferry/internal/places"
	"bookferry/internal/types"
)

var (
	ErrNotFound     = errors.New("request not found")
	ErrInvalidState = errors.New("request is not open")
	ErrForbidden    = errors.New("request belongs to another user")
	// ErrEngaged: a live match references the request; the match must be
	// withdrawn or resolved before the request can leave the pool.
	ErrEngaged = errors.New("request is referenced by a live match")
)

type Service struct {
	store  *Store
	cities places.Canonicalizer
	now    func() time.Time
}

func NewService(store *Store, cities places.Canonicalizer) *Service {
	return &Service{store: store, cities: cities, now: time.Now}
}

type CreateCommand struct {
	UserID          types.ID
	DestinationCity string
	Deadline        time.Time
	WeightKg        float64
	Books           []BookItem
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Request, error) {
	city, err := s.cities.CanonicalCity(ctx, cmd.DestinationCity)
	if err != nil {
		return nil, err
	}
	r := &Request{
		ID:              types.ID(uuid.NewString()),
		UserID:          cmd.UserID,
		DestinationCity: city,
		Deadline:        cmd.Deadline,
		WeightKg:        cmd.WeightKg,
		Books:           cmd.Books,
		Status:          StatusOpen,
		CreatedAt:       s.now(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	// Deadline must be today or later; a request that can no longer be
	// fulfilled is rejected rather than silently never matched.
	if dateOf(r.Deadline).Before(dateOf(s.now())) {
		return nil, types.Invalid("deadline", "must not be in the past")
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Request, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListMine(ctx context.Context, userID types.ID) ([]Request, error) {
	return s.store.ListByUser(ctx, userID)
}

// Withdraw takes an open request out of the pool. Only the owner may
// withdraw, and only while no live match references the request; a proposed
// match must be withdrawn first so payment can never activate against a
// withdrawn request.
func (s *Service) Withdraw(ctx context.Context, id, actor types.ID) error {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != actor {
		return ErrForbidden
	}
	ok, err := s.store.Withdraw(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// Distinguish which guard failed: still open means a live match
		// holds the request.
		if r, err := s.store.Get(ctx, id); err == nil && r.Status == StatusOpen {
			return ErrEngaged
		}
		return ErrInvalidState
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
