// README: Request store backed by PostgreSQL.
package request

import (
	"context"
	"encoding/json"
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

func (s *Store) Create(ctx context.Context, r *Request) error {
	books, err := json.Marshal(r.Books)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO requests (
			id, user_id, destination_city, deadline, weight_kg, books, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(r.ID), string(r.UserID), r.DestinationCity,
		r.Deadline, r.WeightKg, books, string(r.Status), r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Request, error) {
	rows, err := s.db.Query(ctx, selectCols+` FROM requests WHERE id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanRequest(rows)
}

// ListOpen returns the open request pool for matching: requests of everyone
// except excludeUser, with banned owners filtered out.
func (s *Store) ListOpen(ctx context.Context, excludeUser types.ID) ([]Request, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM requests r
		JOIN users u ON u.id = r.user_id
		WHERE r.status = 'open' AND u.banned = FALSE AND r.user_id <> $1
		ORDER BY r.created_at`, string(excludeUser))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// ListOpenByUser returns the caller's own open requests (dashboard anchors).
func (s *Store) ListOpenByUser(ctx context.Context, userID types.ID) ([]Request, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM requests r
		WHERE r.status = 'open' AND r.user_id = $1
		ORDER BY r.created_at`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *Store) ListByUser(ctx context.Context, userID types.ID) ([]Request, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM requests r
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// Withdraw is a guarded status write: it succeeds only while the request is
// open AND no live match references it. The NOT EXISTS runs in the same
// statement as the write, so a request cannot slip out from under a match
// that is mid-payment. false means a guard failed.
func (s *Store) Withdraw(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE requests SET status = 'withdrawn'
		WHERE id = $1 AND status = 'open'
		  AND NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE m.request_id = $1
			  AND m.status IN ('proposed', 'active', 'disputed'))`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const selectCols = `
	SELECT r.id, r.user_id, r.destination_city, r.deadline, r.weight_kg,
	       r.books, r.status, r.created_at`

func scanRequest(rows pgx.Rows) (*Request, error) {
	var r Request
	var books []byte
	if err := rows.Scan(
		&r.ID, &r.UserID, &r.DestinationCity, &r.Deadline,
		&r.WeightKg, &books, &r.Status, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(books, &r.Books); err != nil {
		return nil, types.Invalid("books", "stored value is not valid JSON")
	}
	// Store-boundary validation: a malformed row must not reach matching.
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("request %s: %w", r.ID, err)
	}
	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
