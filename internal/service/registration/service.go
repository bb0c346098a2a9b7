package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kmelnyk/gatecheck/internal/code"
	"github.com/kmelnyk/gatecheck/internal/domain"
	"github.com/kmelnyk/gatecheck/internal/notify"
	"github.com/kmelnyk/gatecheck/internal/repository"
	redisrepo "github.com/kmelnyk/gatecheck/internal/repository/redis"
)

// Storage is the registration store contract. CreateRegistration must enforce
// the capacity limit and the one-active-registration-per-(event,user)
// invariant atomically with the insert; CancelRegistration must cascade to
// the ticket in the same transaction.
type Storage interface {
	EventByID(ctx context.Context, id int64) (*domain.Event, error)
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	CreateRegistration(ctx context.Context, reg *domain.Registration, t *domain.Ticket) error
	RegistrationByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error)
	CancelRegistration(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Registration, *domain.Ticket, error)
}

type Config struct {
	// MaxAttempts bounds retries of the registration insert on transient
	// storage conflicts (serialization failures under capacity races).
	MaxAttempts int
	// RetryBackoff is the pause between attempts.
	RetryBackoff time.Duration
	// NotifyTimeout caps the out-of-band notification send.
	NotifyTimeout time.Duration
}

type Service struct {
	store      Storage
	cache      *redisrepo.Cache
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	cfg        Config
}

func New(
	store Storage,
	cache *redisrepo.Cache,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}

	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}

	return &Service{
		store:      store,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// Register creates a registration for the user and issues its ticket in the
// same transaction. The notification carrying the code is dispatched
// out-of-band after the commit; its failure never fails the registration.
//
// Returns:
//   - error: registration.ErrEventNotFound / ErrUserNotFound.
//   - error: registration.ErrEventNotOpen if the event does not accept
//     registrations.
//   - error: registration.ErrAlreadyRegistered if the user already holds an
//     active registration for the event.
//   - error: registration.ErrCapacityExceeded if the event is full.
func (s *Service) Register(
	ctx context.Context,
	eventID, userID int64,
) (*domain.Registration, *domain.Ticket, error) {
	const op = "service.registration.Register"

	event, err := s.store.EventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	if !event.OpenForRegistration() {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrEventNotOpen)
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}

		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	now := time.Now().UTC()

	reg := &domain.Registration{
		ID:           uuid.New(),
		EventID:      eventID,
		UserID:       userID,
		Status:       domain.RegistrationActive,
		RegisteredAt: now,
	}

	ticket := s.issueTicket(reg, now)

	if err := s.createWithRetry(ctx, reg, ticket); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, nil, fmt.Errorf("%s:%w", op, ErrAlreadyRegistered)
		case errors.Is(err, repository.ErrCapacityExceeded):
			return nil, nil, fmt.Errorf("%s:%w", op, ErrCapacityExceeded)
		case errors.Is(err, repository.ErrRetryable):
			return nil, nil, fmt.Errorf("%s:%w", op, ErrTransient)
		case errors.Is(err, repository.ErrNotFound):
			return nil, nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		default:
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}

	s.dispatchAsync(notify.TicketMessage{
		RegistrationID: reg.ID,
		Code:           ticket.Code,
		EventTitle:     event.Title,
		RecipientEmail: user.Email,
		RecipientName:  user.Name,
	})

	return reg, ticket, nil
}

// Cancel cancels a registration and its ticket. It is idempotent: cancelling
// an already-cancelled registration returns the current state without error.
// A ticket that was already redeemed stays used; the admission happened.
//
// Returns:
//   - error: registration.ErrRegistrationNotFound if no such registration
//     exists.
func (s *Service) Cancel(
	ctx context.Context,
	registrationID uuid.UUID,
) (*domain.Registration, *domain.Ticket, error) {
	const op = "service.registration.Cancel"

	reg, ticket, err := s.store.CancelRegistration(ctx, registrationID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrRegistrationNotFound)
		}

		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, reg.EventID)
	}

	return reg, ticket, nil
}

// Get retrieves a registration.
//
// Returns:
//   - error: registration.ErrRegistrationNotFound if no such registration
//     exists.
func (s *Service) Get(ctx context.Context, registrationID uuid.UUID) (*domain.Registration, error) {
	const op = "service.registration.Get"

	reg, err := s.store.RegistrationByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrRegistrationNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return reg, nil
}

// issueTicket builds the ticket owned by a fresh registration. Exactly one
// ticket exists per registration; the unique index on registration_id backs
// that up at the storage layer.
func (s *Service) issueTicket(reg *domain.Registration, now time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:             uuid.New(),
		Code:           code.Generate(),
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		Status:         domain.TicketValid,
		IssuedAt:       now,
	}
}

func (s *Service) createWithRetry(
	ctx context.Context,
	reg *domain.Registration,
	ticket *domain.Ticket,
) error {
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryBackoff):
			}
		}

		err := s.store.CreateRegistration(ctx, reg, ticket)
		if err == nil {
			return nil
		}

		if !errors.Is(err, repository.ErrRetryable) {
			return err
		}

		lastErr = err
	}

	return lastErr
}

func (s *Service) dispatchAsync(msg notify.TicketMessage) {
	if s.dispatcher == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NotifyTimeout)
		defer cancel()

		if err := s.dispatcher.SendTicket(ctx, msg); err != nil {
			s.logger.Warn("ticket notification failed",
				"registration_id", msg.RegistrationID,
				"recipient", msg.RecipientEmail,
				"error", err,
			)
		}
	}()
}
