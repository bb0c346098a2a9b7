package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kmelnyk/gatecheck/internal/domain"
	"github.com/kmelnyk/gatecheck/internal/repository"
	redisrepo "github.com/kmelnyk/gatecheck/internal/repository/redis"
)

// Storage is the ticket store contract the verifier runs against. RedeemTicket
// must be atomic: of any number of concurrent calls for one ticket, exactly
// one may succeed.
type Storage interface {
	TicketByCode(ctx context.Context, code string) (*domain.TicketDetails, error)
	RedeemTicket(ctx context.Context, ticketID uuid.UUID, eventID, scannerID int64, now time.Time) (uuid.UUID, error)
	RecordInvalidScan(ctx context.Context, c *domain.Checkin) error
}

type Config struct {
	// MaxAttempts bounds retries of the atomic redemption on transient
	// storage conflicts.
	MaxAttempts int
	// RetryBackoff is the pause between attempts.
	RetryBackoff time.Duration
	// DisableInvalidAudit turns off the audit rows written for rejected
	// scans of known tickets.
	DisableInvalidAudit bool
}

type Service struct {
	store   Storage
	cache   *redisrepo.Cache
	pubsub  *redisrepo.CheckinPubSub
	limiter *redisrepo.SlidingWindowLimiter
	logger  *slog.Logger
	cfg     Config
}

func New(
	store Storage,
	cache *redisrepo.Cache,
	pubsub *redisrepo.CheckinPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}

	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
	}
}

// Redeem validates a scanned code and, when it passes every check, redeems
// the ticket: exactly one of any set of concurrent calls for the same ticket
// returns success, the rest return ErrAlreadyRedeemed.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ticketCode: the scanned redemption code.
//   - eventID: the event the scanning station is checking people into.
//   - scannerID: the staff user operating the station.
//   - now: the scan time; the event window is evaluated against it.
//
// Returns:
//   - *domain.CheckinResult: attendee and event context for the scanner UI.
//   - error: one of the sentinel errors in this package; only ErrTransient
//     is retryable.
func (s *Service) Redeem(
	ctx context.Context,
	ticketCode string,
	eventID int64,
	scannerID int64,
	now time.Time,
	rlKey string,
) (*domain.CheckinResult, error) {
	const op = "service.checkin.Redeem"

	if s.limiter != nil && rlKey != "" {
		dec, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			// A broken limiter must not block the door.
			s.logger.Warn("rate limiter unavailable", "error", err)
		} else if !dec.Allowed {
			return nil, fmt.Errorf("%s: retry in %s: %w", op, dec.RetryAfter, ErrRateLimited)
		}
	}

	details, err := s.store.TicketByCode(ctx, ticketCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if reject := s.validate(details, eventID, now); reject != nil {
		s.auditInvalid(ctx, details, eventID, scannerID, now)
		return nil, fmt.Errorf("%s:%w", op, reject)
	}

	checkinID, err := s.redeemWithRetry(ctx, details.ID, eventID, scannerID, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyUsed):
			// Lost the race: another scanner redeemed between our read and
			// the conditional update. Re-read for the operator message.
			s.auditInvalid(ctx, details, eventID, scannerID, now)
			return nil, fmt.Errorf("%s:%w", op, s.alreadyRedeemed(ctx, ticketCode, details))
		case errors.Is(err, repository.ErrCancelled):
			s.auditInvalid(ctx, details, eventID, scannerID, now)
			return nil, fmt.Errorf("%s:%w", op, ErrTicketCancelled)
		case errors.Is(err, repository.ErrRetryable):
			return nil, fmt.Errorf("%s:%w", op, ErrTransient)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		default:
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishTicketRedeemed(ctx, eventID, details.ID)
	}

	return &domain.CheckinResult{
		CheckinID:    checkinID,
		TicketID:     details.ID,
		AttendeeName: details.AttendeeName,
		EventTitle:   details.EventTitle,
		PriorStatus:  domain.TicketValid,
		RedeemedAt:   now,
	}, nil
}

// Describe returns the scan-time view of a ticket without transitioning any
// state. Admin "view ticket" screens use it.
//
// Returns:
//   - error: checkin.ErrTicketNotFound if no ticket carries the code.
func (s *Service) Describe(ctx context.Context, ticketCode string) (*domain.TicketDetails, error) {
	const op = "service.checkin.Describe"

	details, err := s.store.TicketByCode(ctx, ticketCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return details, nil
}

// validate runs the ordered pre-checks. The final status check is advisory:
// the conditional update in RedeemTicket is what actually prevents a double
// redemption.
func (s *Service) validate(d *domain.TicketDetails, eventID int64, now time.Time) error {
	if d.EventID != eventID {
		return ErrWrongEvent
	}

	switch d.Status {
	case domain.TicketUsed:
		e := &AlreadyRedeemedError{Attendee: d.AttendeeName}
		if d.UsedAt != nil {
			e.UsedAt = *d.UsedAt
		}
		return e
	case domain.TicketCancelled:
		return ErrTicketCancelled
	}

	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return ErrTicketExpired
	}

	if now.Before(d.EventStarts) {
		return ErrEventNotStarted
	}

	if now.After(d.EventEnds) {
		return ErrEventEnded
	}

	return nil
}

func (s *Service) redeemWithRetry(
	ctx context.Context,
	ticketID uuid.UUID,
	eventID, scannerID int64,
	now time.Time,
) (uuid.UUID, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return uuid.Nil, ctx.Err()
			case <-time.After(s.cfg.RetryBackoff):
			}
		}

		id, err := s.store.RedeemTicket(ctx, ticketID, eventID, scannerID, now)
		if err == nil {
			return id, nil
		}

		if !errors.Is(err, repository.ErrRetryable) {
			return uuid.Nil, err
		}

		lastErr = err
	}

	return uuid.Nil, lastErr
}

func (s *Service) alreadyRedeemed(
	ctx context.Context,
	ticketCode string,
	stale *domain.TicketDetails,
) error {
	e := &AlreadyRedeemedError{Attendee: stale.AttendeeName}

	if fresh, err := s.store.TicketByCode(ctx, ticketCode); err == nil && fresh.UsedAt != nil {
		e.UsedAt = *fresh.UsedAt
	}

	return e
}

func (s *Service) auditInvalid(
	ctx context.Context,
	d *domain.TicketDetails,
	eventID, scannerID int64,
	now time.Time,
) {
	if s.cfg.DisableInvalidAudit {
		return
	}

	err := s.store.RecordInvalidScan(ctx, &domain.Checkin{
		TicketID:  d.ID,
		EventID:   eventID,
		ScannerID: scannerID,
		ScanTime:  now,
	})
	if err != nil {
		s.logger.Warn("failed to record invalid scan",
			"ticket_id", d.ID, "event_id", eventID, "error", err)
	}
}
