package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kmelnyk/gatecheck/internal/domain"
)

type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetEvent retrieves an event by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.QueryRepo.GetEvent"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, title, starts_at, ends_at, capacity, status, organizer_id
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &e.Starts, &e.Ends, &e.Capacity, &e.Status, &e.OrganizerID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}

// GetUser retrieves a user by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the user is not found.
func (r *QueryRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgres.QueryRepo.GetUser"

	db := r.handle()

	var u domain.User
	err := db.QueryRow(ctx,
		`SELECT id, email, name FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &u, nil
}

// AttendanceCounts aggregates registration and check-in numbers for an event.
//
// Returns:
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) AttendanceCounts(ctx context.Context, eventID int64) (*domain.AttendanceCounts, error) {
	const op = "postgres.QueryRepo.AttendanceCounts"

	db := r.handle()

	var ac domain.AttendanceCounts
	err := db.QueryRow(ctx,
		`SELECT
		    COALESCE(SUM(CASE WHEN r.status = 'registered' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN r.status = 'cancelled' THEN 1 ELSE 0 END), 0),
		    (SELECT count(*) FROM checkins c
		      WHERE c.event_id = e.id AND c.status = 'success'),
		    e.capacity
		 FROM events e
		 LEFT JOIN registrations r ON r.event_id = e.id
		 WHERE e.id = $1
		 GROUP BY e.id, e.capacity`,
		eventID,
	).Scan(&ac.Registered, &ac.Cancelled, &ac.CheckedIn, &ac.Capacity)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &ac, nil
}
