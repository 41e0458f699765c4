// README: Ride stores; Postgres with optimistic status versions, and an in-memory twin.
package ride

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridebid/internal/types"
)

type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	// UpdateStatus applies from -> to only if the stored version still
	// matches; it reports false when another writer got there first.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time, reason *string) (bool, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, customer_id, driver_id, fare_amount, fare_currency,
			status, status_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		string(r.ID),
		string(r.CustomerID),
		string(r.DriverID),
		r.Fare.Amount,
		r.Fare.Currency,
		string(r.Status),
		r.StatusVersion,
		r.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, customer_id, driver_id, fare_amount, fare_currency,
		       status, status_version, created_at,
		       started_at, completed_at, cancelled_at, cancel_reason
		FROM rides
		WHERE id = $1`, string(id),
	)

	var (
		r                       Ride
		rid, customer, driver   string
		status                  string
		started, done, canceled *time.Time
	)
	err := row.Scan(
		&rid, &customer, &driver, &r.Fare.Amount, &r.Fare.Currency,
		&status, &r.StatusVersion, &r.CreatedAt,
		&started, &done, &canceled, &r.CancelReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(rid)
	r.CustomerID = types.ID(customer)
	r.DriverID = types.ID(driver)
	r.Status = Status(status)
	r.StartedAt = started
	r.CompletedAt = done
	r.CancelledAt = canceled
	return &r, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time, reason *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    status_version = status_version + 1,
		    started_at = CASE WHEN $1 = 'in_progress' THEN $2::timestamptz ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN $2::timestamptz ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN $2::timestamptz ELSE cancelled_at END,
		    cancel_reason = COALESCE($3::text, cancel_reason)
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(to),
		at,
		reason,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MemStore keeps rides in process. Used by tests and by deployments
// without a database.
type MemStore struct {
	mu    sync.Mutex
	rides map[types.ID]Ride
}

func NewMemStore() *MemStore {
	return &MemStore{rides: make(map[types.ID]Ride)}
}

func (s *MemStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; ok {
		return ErrDuplicate
	}
	s.rides[r.ID] = *r
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, at time.Time, reason *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.Status != from || r.StatusVersion != version {
		return false, nil
	}
	r.Status = to
	r.StatusVersion++
	r.stamp(to, at, reason)
	s.rides[id] = r
	return true, nil
}
