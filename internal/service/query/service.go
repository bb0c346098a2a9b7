package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kmelnyk/gatecheck/internal/domain"
	"github.com/kmelnyk/gatecheck/internal/repository"
	redisrepo "github.com/kmelnyk/gatecheck/internal/repository/redis"
)

type Storage interface {
	EventByID(ctx context.Context, id int64) (*domain.Event, error)
	AttendanceCounts(ctx context.Context, eventID int64) (*domain.AttendanceCounts, error)
	CheckinsByEvent(ctx context.Context, eventID int64, limit, offset int) ([]domain.Checkin, error)
}

type Config struct {
	EventSummaryTTL    time.Duration
	AttendanceTTL      time.Duration
	DefaultCheckinPage int
	MaxCheckinPage     int
}

type Service struct {
	store Storage
	cache *redisrepo.Cache
	cfg   Config
}

func New(store Storage, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	if cfg.AttendanceTTL <= 0 {
		cfg.AttendanceTTL = 15 * time.Second
	}

	if cfg.DefaultCheckinPage <= 0 {
		cfg.DefaultCheckinPage = 100
	}

	if cfg.MaxCheckinPage <= 0 {
		cfg.MaxCheckinPage = 500
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetEvent retrieves an event summary through the cache.
//
// Returns:
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	load := func(ctx context.Context) (domain.Event, error) {
		e, err := s.store.EventByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Event{}, ErrEventNotFound
			}

			return domain.Event{}, err
		}

		return *e, nil
	}

	if s.cache == nil {
		e, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &e, nil
	}

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyEventSummary(id),
		s.cfg.EventSummaryTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &event, nil
}

// Attendance retrieves the registration and check-in counters for an event
// through the cache.
//
// Returns:
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) Attendance(ctx context.Context, eventID int64) (*domain.AttendanceCounts, error) {
	const op = "service.query.Attendance"

	load := func(ctx context.Context) (domain.AttendanceCounts, error) {
		ac, err := s.store.AttendanceCounts(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.AttendanceCounts{}, ErrEventNotFound
			}

			return domain.AttendanceCounts{}, err
		}

		return *ac, nil
	}

	if s.cache == nil {
		ac, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &ac, nil
	}

	counts, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyEventAttendance(eventID),
		s.cfg.AttendanceTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &counts, nil
}

// Checkins lists the check-in log for an event, newest first.
func (s *Service) Checkins(
	ctx context.Context,
	eventID int64,
	limit, offset int,
) ([]domain.Checkin, error) {
	const op = "service.query.Checkins"

	if limit <= 0 {
		limit = s.cfg.DefaultCheckinPage
	}

	if limit > s.cfg.MaxCheckinPage {
		limit = s.cfg.MaxCheckinPage
	}

	list, err := s.store.CheckinsByEvent(ctx, eventID, limit, offset)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return list, nil
}
