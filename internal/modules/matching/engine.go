// README: Pure compatibility engine over open requests and trips.
package matching

import (
	"sort"
	"time"

	"bookferry/internal/modules/request"
	"bookferry/internal/modules/trip"
	"bookferry/internal/places"
	"bookferry/internal/types"
)

// The engine is pure: no I/O, no mutation of its inputs, deterministic
// output order. Callers own pool assembly (open status, ban and self
// exclusion); the engine owns the compatibility predicate and ordering.
//
// A trip is compatible with a request iff:
//   - destination cities are equal after normalization,
//   - trip capacity covers the request weight,
//   - the trip arrives on or before the request deadline,
//   - the pair does not already hold a live match (engaged set).
//
// Order: earliest candidate date first (travel date for trips, deadline for
// requests), then descending capacity slack, then ascending creation time.
// The soonest-compatible counterpart with the most room comes first; those
// matches are the least likely to need renegotiation.

// TripsForRequest returns the trips from pool compatible with req.
// engaged holds trip IDs that already have a live match with req.
// Malformed inputs are a caller defect and yield a ValidationError; the
// engine never silently skips an entity.
func TripsForRequest(req request.Request, pool []trip.Trip, engaged map[types.ID]bool) ([]trip.Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for i := range pool {
		if err := pool[i].Validate(); err != nil {
			return nil, err
		}
	}

	city := places.Normalize(req.DestinationCity)
	out := make([]trip.Trip, 0, len(pool))
	for _, t := range pool {
		if engaged[t.ID] {
			continue
		}
		if places.Normalize(t.DestinationCity) != city {
			continue
		}
		if t.CapacityKg < req.WeightKg {
			continue
		}
		if dateOf(t.TravelDate).After(dateOf(req.Deadline)) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := dateOf(out[i].TravelDate), dateOf(out[j].TravelDate)
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if out[i].CapacityKg != out[j].CapacityKg {
			return out[i].CapacityKg > out[j].CapacityKg
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RequestsForTrip returns the requests from pool compatible with t.
// engaged holds request IDs that already have a live match with t.
func RequestsForTrip(t trip.Trip, pool []request.Request, engaged map[types.ID]bool) ([]request.Request, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for i := range pool {
		if err := pool[i].Validate(); err != nil {
			return nil, err
		}
	}

	city := places.Normalize(t.DestinationCity)
	travel := dateOf(t.TravelDate)
	out := make([]request.Request, 0, len(pool))
	for _, r := range pool {
		if engaged[r.ID] {
			continue
		}
		if places.Normalize(r.DestinationCity) != city {
			continue
		}
		if r.WeightKg > t.CapacityKg {
			continue
		}
		if travel.After(dateOf(r.Deadline)) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := dateOf(out[i].Deadline), dateOf(out[j].Deadline)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		// More headroom under the trip's capacity first.
		if out[i].WeightKg != out[j].WeightKg {
			return out[i].WeightKg < out[j].WeightKg
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Compatible reports whether a single (request, trip) pairing satisfies the
// engine predicate. The lifecycle manager re-checks this before proposing.
func Compatible(r request.Request, t trip.Trip) bool {
	if r.Validate() != nil || t.Validate() != nil {
		return false
	}
	return places.Normalize(r.DestinationCity) == places.Normalize(t.DestinationCity) &&
		t.CapacityKg >= r.WeightKg &&
		!dateOf(t.TravelDate).After(dateOf(r.Deadline))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
