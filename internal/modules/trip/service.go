// README: Trip service: creation with validation, withdrawal, listing.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"bookferry/internal/places"
	"bookferry/internal/types"
)

var (
	ErrNotFound     = errors.New("trip not found")
	ErrInvalidState = errors.New("trip is not open")
	ErrForbidden    = errors.New("trip belongs to another user")
	// ErrEngaged: a live match references the trip; the match must be
	// withdrawn or resolved before the trip can leave the pool.
	ErrEngaged = errors.New("trip is referenced by a live match")
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
	OriginCity      string
	DestinationCity string
	TravelDate      time.Time
	CapacityKg      float64
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	city, err := s.cities.CanonicalCity(ctx, cmd.DestinationCity)
	if err != nil {
		return nil, err
	}
	t := &Trip{
		ID:              types.ID(uuid.NewString()),
		UserID:          cmd.UserID,
		OriginCity:      cmd.OriginCity,
		DestinationCity: city,
		TravelDate:      cmd.TravelDate,
		CapacityKg:      cmd.CapacityKg,
		Status:          StatusOpen,
		CreatedAt:       s.now(),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListMine(ctx context.Context, userID types.ID) ([]Trip, error) {
	return s.store.ListByUser(ctx, userID)
}

// Withdraw takes an open trip out of the pool. Only the owner may withdraw,
// and only while no live match references the trip; a proposed match must be
// withdrawn first so payment can never activate against a withdrawn trip.
func (s *Service) Withdraw(ctx context.Context, id, actor types.ID) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.UserID != actor {
		return ErrForbidden
	}
	ok, err := s.store.Withdraw(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// Distinguish which guard failed: still open means a live match
		// holds the trip.
		if t, err := s.store.Get(ctx, id); err == nil && t.Status == StatusOpen {
			return ErrEngaged
		}
		return ErrInvalidState
	}
	return nil
}
