package checkin

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrWrongEvent      = errors.New("ticket belongs to another event")
	ErrTicketCancelled = errors.New("ticket cancelled")
	ErrTicketExpired   = errors.New("ticket expired")
	ErrEventNotStarted = errors.New("event has not started")
	ErrEventEnded      = errors.New("event has ended")
	ErrAlreadyRedeemed = errors.New("ticket already redeemed")
	ErrRateLimited     = errors.New("scanner rate limited")

	// ErrTransient marks storage contention the caller may retry; every
	// other failure here is a terminal scan outcome.
	ErrTransient = errors.New("transient storage failure")
)

// AlreadyRedeemedError tells the scanning operator who was admitted and
// when, instead of a blank rejection.
type AlreadyRedeemedError struct {
	Attendee string
	UsedAt   time.Time
}

func (e *AlreadyRedeemedError) Error() string {
	if e.UsedAt.IsZero() {
		return "ticket already redeemed"
	}
	return fmt.Sprintf("ticket already redeemed at %s by %s",
		e.UsedAt.Format(time.Kitchen), e.Attendee)
}

func (e *AlreadyRedeemedError) Unwrap() error { return ErrAlreadyRedeemed }
