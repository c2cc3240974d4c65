// README: Matching result shapes for the dashboard surface.
package matching

import "bookferry/internal/types"

// Pair identifies a (request, trip) pairing that holds a live match.
type Pair struct {
	RequestID types.ID
	TripID    types.ID
}

// RequestMatches lists compatible trips for one of the caller's requests,
// in engine order.
type RequestMatches struct {
	RequestID types.ID   `json:"request_id"`
	TripIDs   []types.ID `json:"trip_ids"`
}

// TripMatches lists compatible requests for one of the caller's trips,
// in engine order.
type TripMatches struct {
	TripID     types.ID   `json:"trip_id"`
	RequestIDs []types.ID `json:"request_ids"`
}

// Dashboard is the multi-anchor result: the single-anchor engine applied
// independently per open entity of the caller, no cross-anchor interaction.
type Dashboard struct {
	RequestMatches []RequestMatches `json:"request_matches"`
	TripMatches    []TripMatches    `json:"trip_matches"`
}
