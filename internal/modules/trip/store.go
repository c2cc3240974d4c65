// README: Trip store backed by PostgreSQL.
package trip

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookferry/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, t *Trip) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (
			id, user_id, origin_city, destination_city, travel_date, capacity_kg, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(t.ID), string(t.UserID), t.OriginCity, t.DestinationCity,
		t.TravelDate, t.CapacityKg, string(t.Status), t.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Trip, error) {
	rows, err := s.db.Query(ctx, selectCols+` FROM trips t WHERE t.id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanTrip(rows)
}

// ListOpen returns the open trip pool for matching: trips of everyone except
// excludeUser, with banned owners filtered out.
func (s *Store) ListOpen(ctx context.Context, excludeUser types.ID) ([]Trip, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM trips t
		JOIN users u ON u.id = t.user_id
		WHERE t.status = 'open' AND u.banned = FALSE AND t.user_id <> $1
		ORDER BY t.created_at`, string(excludeUser))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrips(rows)
}

// ListOpenByUser returns the caller's own open trips (dashboard anchors).
func (s *Store) ListOpenByUser(ctx context.Context, userID types.ID) ([]Trip, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM trips t
		WHERE t.status = 'open' AND t.user_id = $1
		ORDER BY t.created_at`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrips(rows)
}

func (s *Store) ListByUser(ctx context.Context, userID types.ID) ([]Trip, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM trips t
		WHERE t.user_id = $1
		ORDER BY t.created_at DESC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrips(rows)
}

// Withdraw is a guarded status write: it succeeds only while the trip is
// open AND no live match references it. The NOT EXISTS runs in the same
// statement as the write, so a trip cannot slip out from under a match that
// is mid-payment. false means a guard failed.
func (s *Store) Withdraw(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trips SET status = 'withdrawn'
		WHERE id = $1 AND status = 'open'
		  AND NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE m.trip_id = $1
			  AND m.status IN ('proposed', 'active', 'disputed'))`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const selectCols = `
	SELECT t.id, t.user_id, t.origin_city, t.destination_city, t.travel_date,
	       t.capacity_kg, t.status, t.created_at`

func scanTrip(rows pgx.Rows) (*Trip, error) {
	var t Trip
	if err := rows.Scan(
		&t.ID, &t.UserID, &t.OriginCity, &t.DestinationCity,
		&t.TravelDate, &t.CapacityKg, &t.Status, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("trip %s: %w", t.ID, err)
	}
	return &t, nil
}

func collectTrips(rows pgx.Rows) ([]Trip, error) {
	var out []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
