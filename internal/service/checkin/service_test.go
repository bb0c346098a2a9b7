package checkin

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmelnyk/gatecheck/internal/code"
	"github.com/kmelnyk/gatecheck/internal/domain"
	"github.com/kmelnyk/gatecheck/internal/repository"
	"github.com/kmelnyk/gatecheck/internal/repository/memory"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store   *memory.Store
	service *Service
	event   domain.Event
	ticket  *domain.Ticket
}

func newFixture(t *testing.T, eventStart, eventEnd time.Time) *fixture {
	t.Helper()

	store := memory.NewStore()
	event := domain.Event{
		ID:       1,
		Title:    "GopherConf",
		Starts:   eventStart,
		Ends:     eventEnd,
		Capacity: 100,
		Status:   domain.EventPublished,
	}
	store.AddEvent(event)
	store.AddUser(domain.User{ID: 7, Email: "alice@example.com", Name: "Alice"})

	reg := &domain.Registration{
		ID:           uuid.New(),
		EventID:      event.ID,
		UserID:       7,
		Status:       domain.RegistrationActive,
		RegisteredAt: time.Now(),
	}
	ticket := &domain.Ticket{
		ID:             uuid.New(),
		Code:           code.Generate(),
		EventID:        event.ID,
		RegistrationID: reg.ID,
		Status:         domain.TicketValid,
		IssuedAt:       time.Now(),
	}
	require.NoError(t, store.CreateRegistration(context.Background(), reg, ticket))

	return &fixture{
		store:   store,
		service: New(store, nil, nil, nil, testLogger, Config{}),
		event:   event,
		ticket:  ticket,
	}
}

func duringEvent(f *fixture) time.Time {
	return f.event.Starts.Add(f.event.Ends.Sub(f.event.Starts) / 2)
}

func TestRedeemSuccess(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	result, err := f.service.Redeem(context.Background(), f.ticket.Code, 1, 42, now, "")
	require.NoError(t, err)

	assert.Equal(t, f.ticket.ID, result.TicketID)
	assert.Equal(t, "Alice", result.AttendeeName)
	assert.Equal(t, "GopherConf", result.EventTitle)
	assert.Equal(t, domain.TicketValid, result.PriorStatus)
	assert.Equal(t, now, result.RedeemedAt)

	details, err := f.service.Describe(context.Background(), f.ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketUsed, details.Status)
	require.NotNil(t, details.UsedAt)
}

func TestRedeemSecondScanRejected(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	_, err := f.service.Redeem(context.Background(), f.ticket.Code, 1, 42, now, "")
	require.NoError(t, err)

	_, err = f.service.Redeem(context.Background(), f.ticket.Code, 1, 43, now.Add(time.Minute), "")
	require.ErrorIs(t, err, ErrAlreadyRedeemed)

	var redeemed *AlreadyRedeemedError
	require.ErrorAs(t, err, &redeemed)
	assert.Equal(t, "Alice", redeemed.Attendee)
	assert.Equal(t, now.Unix(), redeemed.UsedAt.Unix())
}

func TestRedeemConcurrentAtMostOnce(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	const scanners = 50

	var wg sync.WaitGroup
	errs := make([]error, scanners)

	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Redeem(
				context.Background(),
				f.ticket.Code,
				1,
				int64(100+i),
				now,
				"",
			)
		}(i)
	}
	wg.Wait()

	var successes, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, ErrAlreadyRedeemed)
			rejected++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, scanners-1, rejected)

	checkins, err := f.store.CheckinsByEvent(context.Background(), 1, 0, 0)
	require.NoError(t, err)

	var successRows int
	for _, c := range checkins {
		if c.Status == domain.ScanSuccess {
			successRows++
		}
	}
	assert.Equal(t, 1, successRows, "exactly one success check-in row")
}

func TestRedeemWrongEvent(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	_, err := f.service.Redeem(context.Background(), f.ticket.Code, 999, 42, now, "")
	require.ErrorIs(t, err, ErrWrongEvent)

	details, err := f.service.Describe(context.Background(), f.ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketValid, details.Status, "rejected scan must not mutate the ticket")
}

func TestRedeemTimeWindow(t *testing.T) {
	start := time.Now().Add(time.Hour)
	end := start.Add(2 * time.Hour)

	cases := []struct {
		name string
		now  time.Time
		want error
	}{
		{"before start", start.Add(-time.Minute), ErrEventNotStarted},
		{"after end", end.Add(time.Minute), ErrEventEnded},
		{"at start", start, nil},
		{"at end", end, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, start, end)

			_, err := f.service.Redeem(context.Background(), f.ticket.Code, 1, 42, tc.now, "")
			if tc.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestRedeemCancelledTicket(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	_, _, err := f.store.CancelRegistration(context.Background(), f.ticket.RegistrationID, now)
	require.NoError(t, err)

	_, err = f.service.Redeem(context.Background(), f.ticket.Code, 1, 42, now, "")
	require.ErrorIs(t, err, ErrTicketCancelled)
}

func TestRedeemExpiredTicket(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	store := memory.NewStore()
	store.AddEvent(f.event)
	store.AddUser(domain.User{ID: 7, Email: "alice@example.com", Name: "Alice"})

	expired := now.Add(-time.Minute)
	reg := &domain.Registration{
		ID:      uuid.New(),
		EventID: 1,
		UserID:  7,
		Status:  domain.RegistrationActive,
	}
	ticket := &domain.Ticket{
		ID:             uuid.New(),
		Code:           code.Generate(),
		EventID:        1,
		RegistrationID: reg.ID,
		Status:         domain.TicketValid,
		ExpiresAt:      &expired,
	}
	require.NoError(t, store.CreateRegistration(context.Background(), reg, ticket))

	svc := New(store, nil, nil, nil, testLogger, Config{})
	_, err := svc.Redeem(context.Background(), ticket.Code, 1, 42, now, "")
	require.ErrorIs(t, err, ErrTicketExpired)
}

func TestRedeemUnknownCode(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	_, err := f.service.Redeem(context.Background(), "NOSUCHCODE", 1, 42, now, "")
	require.ErrorIs(t, err, ErrTicketNotFound)

	checkins, err := f.store.CheckinsByEvent(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, checkins, "unknown codes leave no audit trail")
}

func TestRejectedScanAudited(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	_, err := f.service.Redeem(context.Background(), f.ticket.Code, 999, 42, now, "")
	require.ErrorIs(t, err, ErrWrongEvent)

	checkins, err := f.store.CheckinsByEvent(context.Background(), 999, 0, 0)
	require.NoError(t, err)
	require.Len(t, checkins, 1)
	assert.Equal(t, domain.ScanInvalid, checkins[0].Status)
	assert.Equal(t, f.ticket.ID, checkins[0].TicketID)
}

func TestDescribeDoesNotMutate(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	for i := 0; i < 3; i++ {
		details, err := f.service.Describe(context.Background(), f.ticket.Code)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketValid, details.Status)
	}

	_, err := f.service.Describe(context.Background(), "NOSUCHCODE")
	require.ErrorIs(t, err, ErrTicketNotFound)
}

// flakyTicketStore fails the atomic redemption with a transient conflict a
// fixed number of times before delegating to the real store.
type flakyTicketStore struct {
	Storage
	failures int
	calls    int
}

func (f *flakyTicketStore) RedeemTicket(ctx context.Context, ticketID uuid.UUID, eventID, scannerID int64, now time.Time) (uuid.UUID, error) {
	f.calls++
	if f.calls <= f.failures {
		return uuid.Nil, repository.ErrRetryable
	}
	return f.Storage.RedeemTicket(ctx, ticketID, eventID, scannerID, now)
}

func TestRedeemRetriesTransientConflict(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))
	store := &flakyTicketStore{Storage: f.store, failures: 2}
	svc := New(store, nil, nil, nil, testLogger, Config{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	result, err := svc.Redeem(context.Background(), f.ticket.Code, 1, 42, now, "")
	require.NoError(t, err)
	assert.Equal(t, f.ticket.ID, result.TicketID)
	assert.Equal(t, 3, store.calls)
}

func TestRedeemTransientAfterRetriesExhausted(t *testing.T) {
	now := time.Now()
	f := newFixture(t, now.Add(-time.Hour), now.Add(time.Hour))
	store := &flakyTicketStore{Storage: f.store, failures: 10}
	svc := New(store, nil, nil, nil, testLogger, Config{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	_, err := svc.Redeem(context.Background(), f.ticket.Code, 1, 42, now, "")
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, store.calls, "redemption must stop after the attempt budget")

	details, err := f.service.Describe(context.Background(), f.ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketValid, details.Status, "a transient failure must leave the ticket redeemable")
}
