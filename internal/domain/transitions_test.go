package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketTransitions(t *testing.T) {
	cases := []struct {
		name string
		from TicketStatus
		to   TicketStatus
		ok   bool
	}{
		{"valid to used", TicketValid, TicketUsed, true},
		{"valid to cancelled", TicketValid, TicketCancelled, true},
		{"used is terminal", TicketUsed, TicketCancelled, false},
		{"used cannot revert", TicketUsed, TicketValid, false},
		{"cancelled is terminal", TicketCancelled, TicketUsed, false},
		{"cancelled cannot revert", TicketCancelled, TicketValid, false},
		{"no self transition", TicketValid, TicketValid, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransitionTicket(tc.from, tc.to))

			ticket := &Ticket{Status: tc.from}
			err := TransitionTicket(ticket, tc.to)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.to, ticket.Status)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tc.from, ticket.Status)
			}
		})
	}
}

func TestRegistrationTransitions(t *testing.T) {
	reg := &Registration{Status: RegistrationActive}
	require.NoError(t, TransitionRegistration(reg, RegistrationCancelled))
	assert.Equal(t, RegistrationCancelled, reg.Status)

	err := TransitionRegistration(reg, RegistrationCancelled)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEventOpenForRegistration(t *testing.T) {
	for status, want := range map[EventStatus]bool{
		EventDraft:     false,
		EventPublished: true,
		EventCancelled: false,
		EventCompleted: false,
	} {
		e := &Event{Status: status}
		assert.Equal(t, want, e.OpenForRegistration(), "status %s", status)
	}
}
