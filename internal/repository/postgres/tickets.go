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

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert persists a freshly issued ticket.
//
// Returns:
//   - error: repository.ErrConflict if the registration already has a ticket
//     or the code collides (unique indexes on registration_id and code).
func (r *TicketRepo) Insert(ctx context.Context, t *domain.Ticket) error {
	const op = "postgres.TicketRepo.Insert"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO tickets (id, code, event_id, registration_id, status, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, 'valid', $5, $6)`,
		t.ID, t.Code, t.EventID, t.RegistrationID, t.IssuedAt, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// DetailsByCode retrieves a ticket by its redemption code, joined with the
// attendee and event so the scanner response needs no follow-up query.
//
// Returns:
//   - error: repository.ErrNotFound if no ticket carries the code.
func (r *TicketRepo) DetailsByCode(ctx context.Context, ticketCode string) (*domain.TicketDetails, error) {
	const op = "postgres.TicketRepo.DetailsByCode"

	db := r.handle()

	var d domain.TicketDetails
	err := db.QueryRow(ctx,
		`SELECT t.id, t.code, t.event_id, t.registration_id, t.status,
		        t.issued_at, t.expires_at, t.used_at,
		        u.name, u.email,
		        e.title, e.starts_at, e.ends_at, e.status
		 FROM tickets t
		 JOIN registrations r ON r.id = t.registration_id
		 JOIN users u ON u.id = r.user_id
		 JOIN events e ON e.id = t.event_id
		 WHERE t.code = $1`,
		ticketCode,
	).Scan(
		&d.ID, &d.Code, &d.EventID, &d.RegistrationID, &d.Status,
		&d.IssuedAt, &d.ExpiresAt, &d.UsedAt,
		&d.AttendeeName, &d.AttendeeEmail,
		&d.EventTitle, &d.EventStarts, &d.EventEnds, &d.EventStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &d, nil
}

// Redeem transitions the ticket valid -> used. The update is conditional on
// the current status, so of any number of concurrent attempts exactly one
// sees a row flip; the rest land in the losing branch and are classified by
// re-reading the row.
//
// Returns:
//   - error: repository.ErrAlreadyUsed if the ticket was redeemed before.
//   - error: repository.ErrCancelled if the ticket was cancelled.
//   - error: repository.ErrNotFound if the ticket does not exist.
func (r *TicketRepo) Redeem(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "postgres.TicketRepo.Redeem"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tickets
		 SET status = 'used', used_at = $2
		 WHERE id = $1 AND status = 'valid'`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var status domain.TicketStatus
	err = db.QueryRow(ctx, `SELECT status FROM tickets WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	switch status {
	case domain.TicketUsed:
		return fmt.Errorf("%s:%w", op, repository.ErrAlreadyUsed)
	case domain.TicketCancelled:
		return fmt.Errorf("%s:%w", op, repository.ErrCancelled)
	default:
		return fmt.Errorf("%s: ticket %s in unexpected status %q", op, id, status)
	}
}

// CancelForRegistration cascades a registration cancellation to its ticket.
// Only a valid ticket transitions; a used ticket stays used because the
// admission already happened.
func (r *TicketRepo) CancelForRegistration(ctx context.Context, registrationID uuid.UUID) error {
	const op = "postgres.TicketRepo.CancelForRegistration"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE tickets
		 SET status = 'cancelled'
		 WHERE registration_id = $1 AND status = 'valid'`,
		registrationID,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// ByRegistration retrieves the ticket owned by a registration.
//
// Returns:
//   - error: repository.ErrNotFound if the registration has no ticket.
func (r *TicketRepo) ByRegistration(ctx context.Context, registrationID uuid.UUID) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.ByRegistration"

	db := r.handle()

	var t domain.Ticket
	err := db.QueryRow(ctx,
		`SELECT id, code, event_id, registration_id, status, issued_at, expires_at, used_at
		 FROM tickets WHERE registration_id = $1`,
		registrationID,
	).Scan(&t.ID, &t.Code, &t.EventID, &t.RegistrationID, &t.Status, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &t, nil
}
