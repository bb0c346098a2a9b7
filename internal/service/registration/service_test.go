package registration

import (
	"context"
	"errors"
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
	"github.com/kmelnyk/gatecheck/internal/notify"
	"github.com/kmelnyk/gatecheck/internal/repository"
	"github.com/kmelnyk/gatecheck/internal/repository/memory"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.TicketMessage
	err  error
	done chan struct{}
}

func newRecordingDispatcher(err error) *recordingDispatcher {
	return &recordingDispatcher{err: err, done: make(chan struct{}, 64)}
}

func (d *recordingDispatcher) SendTicket(_ context.Context, msg notify.TicketMessage) error {
	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	d.done <- struct{}{}
	return d.err
}

func (d *recordingDispatcher) wait(t *testing.T) notify.TicketMessage {
	t.Helper()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was never dispatched")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

func newStore(t *testing.T, capacity int, status domain.EventStatus) *memory.Store {
	t.Helper()

	s := memory.NewStore()
	s.AddEvent(domain.Event{
		ID:       1,
		Title:    "GopherConf",
		Starts:   time.Now().Add(time.Hour),
		Ends:     time.Now().Add(3 * time.Hour),
		Capacity: capacity,
		Status:   status,
	})
	s.AddUser(domain.User{ID: 1, Email: "alice@example.com", Name: "Alice"})

	return s
}

func TestRegisterIssuesTicket(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	dispatcher := newRecordingDispatcher(nil)
	svc := New(store, nil, dispatcher, testLogger, Config{})

	reg, ticket, err := svc.Register(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.RegistrationActive, reg.Status)
	assert.Equal(t, reg.ID, ticket.RegistrationID)
	assert.Equal(t, domain.TicketValid, ticket.Status)
	assert.Len(t, ticket.Code, code.Length)
	assert.Nil(t, ticket.UsedAt)

	msg := dispatcher.wait(t)
	assert.Equal(t, reg.ID, msg.RegistrationID)
	assert.Equal(t, ticket.Code, msg.Code)
	assert.Equal(t, "alice@example.com", msg.RecipientEmail)
	assert.Equal(t, "GopherConf", msg.EventTitle)
}

func TestRegisterNotificationFailureDoesNotFail(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	dispatcher := newRecordingDispatcher(errors.New("smtp down"))
	svc := New(store, nil, dispatcher, testLogger, Config{})

	reg, ticket, err := svc.Register(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NotNil(t, reg)
	require.NotNil(t, ticket)

	dispatcher.wait(t)

	// ticket stays valid even though delivery failed
	details, err := store.TicketByCode(context.Background(), ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketValid, details.Status)
}

func TestRegisterUnknownEventAndUser(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	svc := New(store, nil, nil, testLogger, Config{})

	_, _, err := svc.Register(context.Background(), 999, 1)
	require.ErrorIs(t, err, ErrEventNotFound)

	_, _, err = svc.Register(context.Background(), 1, 999)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRegisterClosedEvent(t *testing.T) {
	for _, status := range []domain.EventStatus{
		domain.EventDraft,
		domain.EventCancelled,
		domain.EventCompleted,
	} {
		store := newStore(t, 10, status)
		svc := New(store, nil, nil, testLogger, Config{})

		_, _, err := svc.Register(context.Background(), 1, 1)
		require.ErrorIs(t, err, ErrEventNotOpen, "status %s", status)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	svc := New(store, nil, nil, testLogger, Config{})

	_, _, err := svc.Register(context.Background(), 1, 1)
	require.NoError(t, err)

	_, _, err = svc.Register(context.Background(), 1, 1)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterCapacityRace(t *testing.T) {
	const capacity = 3
	const racers = 10

	store := newStore(t, capacity, domain.EventPublished)
	for i := int64(2); i <= racers; i++ {
		store.AddUser(domain.User{ID: i, Email: "u@example.com", Name: "U"})
	}

	svc := New(store, nil, nil, testLogger, Config{})

	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Register(context.Background(), 1, int64(i+1))
		}(i)
	}
	wg.Wait()

	var admitted int
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, ErrCapacityExceeded)
		}
	}
	assert.Equal(t, capacity, admitted)

	counts, err := store.AttendanceCounts(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, capacity, counts.Registered)
}

func TestCancelCascadesToTicket(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	svc := New(store, nil, nil, testLogger, Config{})

	reg, _, err := svc.Register(context.Background(), 1, 1)
	require.NoError(t, err)

	cancelled, ticket, err := svc.Cancel(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, ticket)
	assert.Equal(t, domain.TicketCancelled, ticket.Status)
}

func TestCancelIdempotent(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	svc := New(store, nil, nil, testLogger, Config{})

	reg, _, err := svc.Register(context.Background(), 1, 1)
	require.NoError(t, err)

	first, _, err := svc.Cancel(context.Background(), reg.ID)
	require.NoError(t, err)

	second, _, err := svc.Cancel(context.Background(), reg.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.CancelledAt.Unix(), second.CancelledAt.Unix())
}

func TestCancelKeepsUsedTicket(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	svc := New(store, nil, nil, testLogger, Config{})

	reg, issued, err := svc.Register(context.Background(), 1, 1)
	require.NoError(t, err)

	_, err = store.RedeemTicket(context.Background(), issued.ID, 1, 42, time.Now())
	require.NoError(t, err)

	_, ticket, err := svc.Cancel(context.Background(), reg.ID)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, domain.TicketUsed, ticket.Status, "cancellation must not un-redeem an admitted ticket")
}

func TestCancelUnknownRegistration(t *testing.T) {
	store := newStore(t, 10, domain.EventPublished)
	svc := New(store, nil, nil, testLogger, Config{})

	_, _, err := svc.Cancel(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrRegistrationNotFound)
}

// flakyStore fails the registration insert with a transient conflict a fixed
// number of times before delegating to the real store.
type flakyStore struct {
	Storage
	failures int
	calls    int
}

func (f *flakyStore) CreateRegistration(ctx context.Context, reg *domain.Registration, ticket *domain.Ticket) error {
	f.calls++
	if f.calls <= f.failures {
		return repository.ErrRetryable
	}
	return f.Storage.CreateRegistration(ctx, reg, ticket)
}

func TestRegisterRetriesTransientConflict(t *testing.T) {
	store := &flakyStore{Storage: newStore(t, 10, domain.EventPublished), failures: 2}
	svc := New(store, nil, nil, testLogger, Config{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	reg, ticket, err := svc.Register(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationActive, reg.Status)
	assert.Equal(t, domain.TicketValid, ticket.Status)
	assert.Equal(t, 3, store.calls)
}

func TestRegisterTransientAfterRetriesExhausted(t *testing.T) {
	store := &flakyStore{Storage: newStore(t, 10, domain.EventPublished), failures: 10}
	svc := New(store, nil, nil, testLogger, Config{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	_, _, err := svc.Register(context.Background(), 1, 1)
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, store.calls, "insert must stop after the attempt budget")
}
