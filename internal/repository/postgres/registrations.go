package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kmelnyk/gatecheck/internal/domain"
	"github.com/kmelnyk/gatecheck/internal/repository"
)

type RegistrationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *RegistrationRepo) With(db DB) *RegistrationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *RegistrationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert creates a registration, admitting it only while the event still has
// free capacity. The capacity count and the insert run as one statement so
// that concurrent registrations for the last slots cannot oversell.
//
// Returns:
//   - error: repository.ErrCapacityExceeded if the event is full.
//   - error: repository.ErrConflict if an active registration already exists
//     for the (event, user) pair.
func (r *RegistrationRepo) Insert(ctx context.Context, reg *domain.Registration) error {
	const op = "postgres.RegistrationRepo.Insert"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`INSERT INTO registrations (id, event_id, user_id, status, registered_at)
		 SELECT $1, $2, $3, 'registered', $4
		 WHERE (SELECT count(*) FROM registrations
		         WHERE event_id = $2 AND status = 'registered')
		     < (SELECT capacity FROM events WHERE id = $2)`,
		reg.ID, reg.EventID, reg.UserID, reg.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrCapacityExceeded)
	}

	return nil
}

// ByID retrieves a registration.
//
// Returns:
//   - error: repository.ErrNotFound if no such registration exists.
func (r *RegistrationRepo) ByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	const op = "postgres.RegistrationRepo.ByID"

	db := r.handle()

	var reg domain.Registration
	err := db.QueryRow(ctx,
		`SELECT id, event_id, user_id, status, registered_at, cancelled_at
		 FROM registrations WHERE id = $1`,
		id,
	).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt, &reg.CancelledAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &reg, nil
}

// Cancel flips an active registration to cancelled. It reports whether the
// row actually transitioned; false means the registration was already
// cancelled (the idempotent no-op path) or does not exist.
func (r *RegistrationRepo) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const op = "postgres.RegistrationRepo.Cancel"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE registrations
		 SET status = 'cancelled', cancelled_at = $2
		 WHERE id = $1 AND status = 'registered'`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected() == 1, nil
}
