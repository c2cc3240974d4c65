// README: Match store backed by PostgreSQL; transitions are one atomic batch.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookferry/internal/modules/matching"
	"bookferry/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, m *Match, actorID types.ID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO matches (
			id, request_id, trip_id, amount, currency, status, payment_status,
			status_version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(m.ID), string(m.RequestID), string(m.TripID),
		m.Amount.Amount, m.Amount.Currency,
		string(m.Status), string(m.Payment),
		m.StatusVersion, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyEngaged
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := appendEvent(ctx, tx, &Event{
		MatchID:     m.ID,
		FromStatus:  "",
		ToStatus:    m.Status,
		FromPayment: "",
		ToPayment:   m.Payment,
		ActorType:   string(PartyRequester),
		ActorID:     &actorID,
		CreatedAt:   m.CreatedAt,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Match, error) {
	return scanOne(s.db.QueryRow(ctx, selectCols+` FROM matches WHERE id = $1`, string(id)))
}

// SetPaymentSession stores the checkout session ref, once. A second writer
// loses with ErrConflict and must read the stored ref back.
func (s *PGStore) SetPaymentSession(ctx context.Context, id types.ID, ref string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE matches SET payment_session = $1, updated_at = NOW()
		WHERE id = $2 AND payment_session IS NULL`,
		ref, string(id),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SetConfirmed records one party's delivery confirmation while the match is
// active, and returns the updated row.
func (s *PGStore) SetConfirmed(ctx context.Context, id types.ID, p Party) (*Match, error) {
	col := "requester_confirmed"
	if p == PartyTraveler {
		col = "traveler_confirmed"
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE matches SET `+col+` = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`, string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConflict
	}
	return s.Get(ctx, id)
}

// Apply performs one guarded transition as a single transaction: the
// compare-and-swap on the match row, the entity status updates, the audit
// event, and the settle callback. The row lock taken by the guarded UPDATE
// serializes concurrent appliers; the loser reads the new status, fails the
// guard, and never reaches settle.
func (s *PGStore) Apply(ctx context.Context, t Transition, settle func(context.Context) error) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE matches
		SET status = $1, payment_status = $2,
		    status_version = status_version + 1, updated_at = NOW()
		WHERE id = $3 AND status = $4 AND payment_status = $5 AND status_version = $6`,
		string(t.To.Status), string(t.To.Payment),
		string(t.MatchID), string(t.From.Status), string(t.From.Payment), t.Version,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	// Entity guards are as strict as the match guard: if the request or trip
	// has moved on (say, withdrawn between propose and payment), the whole
	// batch rolls back rather than activating a match against it.
	if u := t.RequestUpdate; u != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE requests SET status = $1 WHERE id = $2 AND status = $3`,
			u.To, string(u.ID), u.From,
		)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if tag.RowsAffected() != 1 {
			return false, fmt.Errorf("%w: request %s is not %q", ErrConflict, u.ID, u.From)
		}
	}
	if u := t.TripUpdate; u != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE trips SET status = $1 WHERE id = $2 AND status = $3`,
			u.To, string(u.ID), u.From,
		)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if tag.RowsAffected() != 1 {
			return false, fmt.Errorf("%w: trip %s is not %q", ErrConflict, u.ID, u.From)
		}
	}

	if err := appendEvent(ctx, tx, &Event{
		MatchID:     t.MatchID,
		FromStatus:  t.From.Status,
		ToStatus:    t.To.Status,
		FromPayment: t.From.Payment,
		ToPayment:   t.To.Payment,
		ActorType:   t.ActorType,
		ActorID:     t.ActorID,
		CreatedAt:   time.Now(),
	}); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Fund movement last: a gateway failure aborts the whole batch and the
	// match stays in its prior state.
	if settle != nil {
		if err := settle(ctx); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return true, nil
}

func (s *PGStore) ListByStatus(ctx context.Context, st Status) ([]Match, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM matches WHERE status = $1 ORDER BY updated_at`, string(st))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return collect(rows)
}

func (s *PGStore) ListExpiredProposed(ctx context.Context, before time.Time) ([]Match, error) {
	rows, err := s.db.Query(ctx, selectCols+`
		FROM matches WHERE status = 'proposed' AND created_at < $1`, before)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return collect(rows)
}

// LivePairs returns every (request, trip) pair holding a non-terminal match.
func (s *PGStore) LivePairs(ctx context.Context) ([]matching.Pair, error) {
	rows, err := s.db.Query(ctx, `
		SELECT request_id, trip_id FROM matches
		WHERE status IN ('proposed', 'active', 'disputed')`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var pairs []matching.Pair
	for rows.Next() {
		var p matching.Pair
		if err := rows.Scan(&p.RequestID, &p.TripID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

const selectCols = `
	SELECT id, request_id, trip_id, amount, currency, status, payment_status,
	       payment_session, requester_confirmed, traveler_confirmed,
	       status_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (*Match, error) {
	var m Match
	var session *string
	err := row.Scan(
		&m.ID, &m.RequestID, &m.TripID, &m.Amount.Amount, &m.Amount.Currency,
		&m.Status, &m.Payment, &session,
		&m.RequesterConfirmed, &m.TravelerConfirmed,
		&m.StatusVersion, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.PaymentSession = session
	return &m, nil
}

func collect(rows pgx.Rows) ([]Match, error) {
	var out []Match
	for rows.Next() {
		m, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func appendEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO match_state_events (
			match_id, from_status, to_status, from_payment, to_payment,
			actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.MatchID),
		string(e.FromStatus), string(e.ToStatus),
		string(e.FromPayment), string(e.ToPayment),
		e.ActorType, actor, e.CreatedAt,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
