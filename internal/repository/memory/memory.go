// Package memory provides a mutex-guarded in-process store with the same
// contract as the postgres store. It backs the service test suites and local
// development without a database; the single mutex gives it the same
// serialized semantics the postgres implementation gets from serializable
// transactions and conditional updates.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kmelnyk/gatecheck/internal/domain"
	"github.com/kmelnyk/gatecheck/internal/repository"
)

type Store struct {
	mu            sync.Mutex
	events        map[int64]*domain.Event
	users         map[int64]*domain.User
	registrations map[uuid.UUID]*domain.Registration
	tickets       map[uuid.UUID]*domain.Ticket
	ticketsByCode map[string]uuid.UUID
	checkins      []*domain.Checkin
}

func NewStore() *Store {
	return &Store{
		events:        make(map[int64]*domain.Event),
		users:         make(map[int64]*domain.User),
		registrations: make(map[uuid.UUID]*domain.Registration),
		tickets:       make(map[uuid.UUID]*domain.Ticket),
		ticketsByCode: make(map[string]uuid.UUID),
	}
}

// AddEvent and AddUser seed reference data; events and users are owned by
// external collaborators and have no lifecycle here.

func (s *Store) AddEvent(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = &e
}

func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *Store) EventByID(_ context.Context, id int64) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	cp := *e
	return &cp, nil
}

func (s *Store) UserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	cp := *u
	return &cp, nil
}

// CreateRegistration admits the registration and its ticket in one critical
// section: the active count, the per-user uniqueness check, and both inserts
// are indivisible, so capacity cannot oversell under concurrent callers.
func (s *Store) CreateRegistration(
	_ context.Context,
	reg *domain.Registration,
	t *domain.Ticket,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[reg.EventID]
	if !ok {
		return repository.ErrNotFound
	}

	var active int
	for _, r := range s.registrations {
		if r.EventID == reg.EventID && r.Status == domain.RegistrationActive {
			if r.UserID == reg.UserID {
				return repository.ErrConflict
			}
			active++
		}
	}

	if active >= e.Capacity {
		return repository.ErrCapacityExceeded
	}

	if _, dup := s.ticketsByCode[t.Code]; dup {
		return repository.ErrConflict
	}

	regCp := *reg
	tCp := *t
	s.registrations[reg.ID] = &regCp
	s.tickets[t.ID] = &tCp
	s.ticketsByCode[t.Code] = t.ID

	return nil
}

func (s *Store) RegistrationByID(_ context.Context, id uuid.UUID) (*domain.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registrations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	cp := *r
	return &cp, nil
}

// CancelRegistration cancels the registration and cascades to its ticket.
// Already-cancelled registrations are returned unchanged.
func (s *Store) CancelRegistration(
	_ context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.Registration, *domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registrations[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}

	if r.Status == domain.RegistrationActive {
		if err := domain.TransitionRegistration(r, domain.RegistrationCancelled); err != nil {
			return nil, nil, err
		}
		cancelled := now
		r.CancelledAt = &cancelled

		for _, t := range s.tickets {
			if t.RegistrationID == id && domain.CanTransitionTicket(t.Status, domain.TicketCancelled) {
				t.Status = domain.TicketCancelled
			}
		}
	}

	regCp := *r
	var ticketCp *domain.Ticket
	for _, t := range s.tickets {
		if t.RegistrationID == id {
			cp := *t
			ticketCp = &cp
			break
		}
	}

	return &regCp, ticketCp, nil
}

func (s *Store) TicketByCode(_ context.Context, ticketCode string) (*domain.TicketDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.ticketsByCode[ticketCode]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return s.detailsLocked(id)
}

func (s *Store) detailsLocked(id uuid.UUID) (*domain.TicketDetails, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	d := domain.TicketDetails{Ticket: *t}

	if r, ok := s.registrations[t.RegistrationID]; ok {
		if u, ok := s.users[r.UserID]; ok {
			d.AttendeeName = u.Name
			d.AttendeeEmail = u.Email
		}
	}

	if e, ok := s.events[t.EventID]; ok {
		d.EventTitle = e.Title
		d.EventStarts = e.Starts
		d.EventEnds = e.Ends
		d.EventStatus = e.Status
	}

	return &d, nil
}

// RedeemTicket is the compare-and-swap: the status check, the flip to used,
// and the success check-in row happen under one lock acquisition. Exactly
// one of any set of concurrent callers succeeds.
func (s *Store) RedeemTicket(
	_ context.Context,
	ticketID uuid.UUID,
	eventID int64,
	scannerID int64,
	now time.Time,
) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}

	switch t.Status {
	case domain.TicketUsed:
		return uuid.Nil, repository.ErrAlreadyUsed
	case domain.TicketCancelled:
		return uuid.Nil, repository.ErrCancelled
	}

	t.Status = domain.TicketUsed
	used := now
	t.UsedAt = &used

	c := &domain.Checkin{
		ID:        uuid.New(),
		TicketID:  ticketID,
		EventID:   eventID,
		ScannerID: scannerID,
		Status:    domain.ScanSuccess,
		ScanTime:  now,
	}
	s.checkins = append(s.checkins, c)

	return c.ID, nil
}

func (s *Store) RecordInvalidScan(_ context.Context, c *domain.Checkin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.Status = domain.ScanInvalid
	s.checkins = append(s.checkins, &cp)

	return nil
}

func (s *Store) AttendanceCounts(_ context.Context, eventID int64) (*domain.AttendanceCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	ac := domain.AttendanceCounts{Capacity: e.Capacity}
	for _, r := range s.registrations {
		if r.EventID != eventID {
			continue
		}
		switch r.Status {
		case domain.RegistrationActive:
			ac.Registered++
		case domain.RegistrationCancelled:
			ac.Cancelled++
		}
	}
	for _, c := range s.checkins {
		if c.EventID == eventID && c.Status == domain.ScanSuccess {
			ac.CheckedIn++
		}
	}

	return &ac, nil
}

func (s *Store) CheckinsByEvent(_ context.Context, eventID int64, limit, offset int) ([]domain.Checkin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.Checkin
	for i := len(s.checkins) - 1; i >= 0; i-- {
		if s.checkins[i].EventID == eventID {
			all = append(all, *s.checkins[i])
		}
	}

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	return all, nil
}
