package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is wrapped by every rejected state transition.
var ErrInvalidTransition = errors.New("invalid state transition")

// ticketMoves is the closed transition set for a ticket: "used" and
// "cancelled" are terminal.
var ticketMoves = map[TicketStatus]map[TicketStatus]bool{
	TicketValid: {
		TicketUsed:      true,
		TicketCancelled: true,
	},
}

// CanTransitionTicket reports whether a ticket may move from one status to
// another.
func CanTransitionTicket(from, to TicketStatus) bool {
	return ticketMoves[from][to]
}

// TransitionTicket moves the ticket to the target status, rejecting moves
// that leave a terminal state.
func TransitionTicket(t *Ticket, to TicketStatus) error {
	if !CanTransitionTicket(t.Status, to) {
		return fmt.Errorf("ticket %s -> %s: %w", t.Status, to, ErrInvalidTransition)
	}
	t.Status = to
	return nil
}

// TransitionRegistration moves the registration to the target status. The
// only legal move is registered -> cancelled.
func TransitionRegistration(r *Registration, to RegistrationStatus) error {
	if r.Status != RegistrationActive || to != RegistrationCancelled {
		return fmt.Errorf("registration %s -> %s: %w", r.Status, to, ErrInvalidTransition)
	}
	r.Status = to
	return nil
}
