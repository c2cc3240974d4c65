// README: User store backed by PostgreSQL.
package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookferry/internal/types"
)

var ErrNotFound = errors.New("user not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Upsert creates the user on first sight; display name follows the token.
func (s *Store) Upsert(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, display_name, role, banned, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		string(u.ID), u.DisplayName, string(u.Role), u.Banned,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, display_name, role, banned, created_at
		FROM users WHERE id = $1`, string(id),
	)
	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Role, &u.Banned, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SetBanned(ctx context.Context, id types.ID, banned bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET banned = $1 WHERE id = $2`, banned, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HasRole reports whether the user holds the given role. Backs the
// admin gate; unknown users hold no roles.
func (s *Store) HasRole(ctx context.Context, id types.ID, role Role) (bool, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Role == role && !u.Banned, nil
}
