package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kmelnyk/gatecheck/internal/domain"
	"github.com/kmelnyk/gatecheck/internal/repository"
)

// Composite operations spanning more than one repo. Each runs inside a
// single serializable transaction so the invariants hold under concurrent
// callers: a registration and its ticket appear together, a cancellation
// cascades without a window where the ticket is still valid, and a
// redemption flips the ticket and writes the success check-in atomically.

// CreateRegistration persists a registration together with its ticket.
func (s *Store) CreateRegistration(
	ctx context.Context,
	reg *domain.Registration,
	t *domain.Ticket,
) error {
	return s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if err := s.Registrations().With(tx).Insert(ctx, reg); err != nil {
			return err
		}

		return s.Tickets().With(tx).Insert(ctx, t)
	})
}

// CancelRegistration cancels a registration and cascades the cancellation to
// its ticket. Calling it on an already-cancelled registration is a no-op
// that returns the current state.
//
// Returns:
//   - error: repository.ErrNotFound if the registration does not exist.
func (s *Store) CancelRegistration(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.Registration, *domain.Ticket, error) {
	var reg *domain.Registration
	var ticket *domain.Ticket

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		flipped, err := s.Registrations().With(tx).Cancel(ctx, id, now)
		if err != nil {
			return err
		}

		if flipped {
			if err := s.Tickets().With(tx).CancelForRegistration(ctx, id); err != nil {
				return err
			}
		}

		reg, err = s.Registrations().With(tx).ByID(ctx, id)
		if err != nil {
			return err
		}

		ticket, err = s.Tickets().With(tx).ByRegistration(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return reg, ticket, nil
}

// RedeemTicket performs the atomic redemption: the conditional valid -> used
// update and the success check-in row commit together or not at all.
func (s *Store) RedeemTicket(
	ctx context.Context,
	ticketID uuid.UUID,
	eventID int64,
	scannerID int64,
	now time.Time,
) (uuid.UUID, error) {
	checkinID := uuid.New()

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if err := s.Tickets().With(tx).Redeem(ctx, ticketID, now); err != nil {
			return err
		}

		return s.Checkins().With(tx).Insert(ctx, &domain.Checkin{
			ID:        checkinID,
			TicketID:  ticketID,
			EventID:   eventID,
			ScannerID: scannerID,
			Status:    domain.ScanSuccess,
			ScanTime:  now,
		})
	})
	if err != nil {
		return uuid.Nil, err
	}

	return checkinID, nil
}

// RecordInvalidScan appends an audit row for a rejected scan. It never
// touches ticket state.
func (s *Store) RecordInvalidScan(ctx context.Context, c *domain.Checkin) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Status = domain.ScanInvalid

	return s.Checkins().Insert(ctx, c)
}

// Lookup passthroughs used by the services.

func (s *Store) EventByID(ctx context.Context, id int64) (*domain.Event, error) {
	return s.Query().GetEvent(ctx, id)
}

func (s *Store) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.Query().GetUser(ctx, id)
}

func (s *Store) RegistrationByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	return s.Registrations().ByID(ctx, id)
}

func (s *Store) TicketByCode(ctx context.Context, ticketCode string) (*domain.TicketDetails, error) {
	return s.Tickets().DetailsByCode(ctx, ticketCode)
}

func (s *Store) AttendanceCounts(ctx context.Context, eventID int64) (*domain.AttendanceCounts, error) {
	return s.Query().AttendanceCounts(ctx, eventID)
}

func (s *Store) CheckinsByEvent(ctx context.Context, eventID int64, limit, offset int) ([]domain.Checkin, error) {
	return s.Checkins().ListByEvent(ctx, eventID, limit, offset)
}
