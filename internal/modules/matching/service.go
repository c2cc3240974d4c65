// README: Matching service assembles pools and computes the per-user dashboard.
package matching

import (
	"context"
	"log"

	"bookferry/internal/modules/request"
	"bookferry/internal/modules/trip"
	"bookferry/internal/modules/user"
	"bookferry/internal/types"
)

// RequestSource supplies request pools.
type RequestSource interface {
	ListOpen(ctx context.Context, excludeUser types.ID) ([]request.Request, error)
	ListOpenByUser(ctx context.Context, userID types.ID) ([]request.Request, error)
}

// TripSource supplies trip pools.
type TripSource interface {
	ListOpen(ctx context.Context, excludeUser types.ID) ([]trip.Trip, error)
	ListOpenByUser(ctx context.Context, userID types.ID) ([]trip.Trip, error)
}

// PairSource supplies the live (non-terminal) match pairs used for the
// defensive already-engaged re-check.
type PairSource interface {
	LivePairs(ctx context.Context) ([]Pair, error)
}

// UserSource answers ban lookups for the calling user.
type UserSource interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

// Cache is the optional dashboard result cache.
type Cache interface {
	GetDashboard(ctx context.Context, userID types.ID) (*Dashboard, bool, error)
	SetDashboard(ctx context.Context, userID types.ID, d *Dashboard) error
	Invalidate(ctx context.Context, userID types.ID) error
}

type Service struct {
	requests RequestSource
	trips    TripSource
	pairs    PairSource
	users    UserSource
	cache    Cache
}

func NewService(requests RequestSource, trips TripSource, pairs PairSource, users UserSource, cache Cache) *Service {
	return &Service{requests: requests, trips: trips, pairs: pairs, users: users, cache: cache}
}

// FindMatches computes the dashboard for userID: the single-anchor engine
// applied independently to each of the user's open requests and trips.
// Worst case O(requests x trips); fine at marketplace scale, where open
// entities per city/date bucket number in the tens to low hundreds.
func (s *Service) FindMatches(ctx context.Context, userID types.ID) (*Dashboard, error) {
	if s.cache != nil {
		if d, ok, err := s.cache.GetDashboard(ctx, userID); err == nil && ok {
			return d, nil
		}
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Banned {
		// Banned users see nothing and are excluded from everyone else's
		// pools by the store queries.
		return &Dashboard{}, nil
	}

	myRequests, err := s.requests.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	myTrips, err := s.trips.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tripPool, err := s.trips.ListOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	requestPool, err := s.requests.ListOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	livePairs, err := s.pairs.LivePairs(ctx)
	if err != nil {
		return nil, err
	}

	byRequest := make(map[types.ID]map[types.ID]bool)
	byTrip := make(map[types.ID]map[types.ID]bool)
	for _, p := range livePairs {
		if byRequest[p.RequestID] == nil {
			byRequest[p.RequestID] = make(map[types.ID]bool)
		}
		byRequest[p.RequestID][p.TripID] = true
		if byTrip[p.TripID] == nil {
			byTrip[p.TripID] = make(map[types.ID]bool)
		}
		byTrip[p.TripID][p.RequestID] = true
	}

	d := &Dashboard{}
	for _, r := range myRequests {
		trips, err := TripsForRequest(r, tripPool, byRequest[r.ID])
		if err != nil {
			return nil, err
		}
		ids := make([]types.ID, len(trips))
		for i, t := range trips {
			ids[i] = t.ID
		}
		d.RequestMatches = append(d.RequestMatches, RequestMatches{RequestID: r.ID, TripIDs: ids})
	}
	for _, t := range myTrips {
		reqs, err := RequestsForTrip(t, requestPool, byTrip[t.ID])
		if err != nil {
			return nil, err
		}
		ids := make([]types.ID, len(reqs))
		for i, r := range reqs {
			ids[i] = r.ID
		}
		d.TripMatches = append(d.TripMatches, TripMatches{TripID: t.ID, RequestIDs: ids})
	}

	if s.cache != nil {
		if err := s.cache.SetDashboard(ctx, userID, d); err != nil {
			log.Printf("matching: cache set for %s: %v", userID, err)
		}
	}
	return d, nil
}

// InvalidateFor drops a user's cached dashboard; called after the user's
// requests, trips, or matches change.
func (s *Service) InvalidateFor(ctx context.Context, userID types.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		log.Printf("matching: cache invalidate for %s: %v", userID, err)
	}
}
