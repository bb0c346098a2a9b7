package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "registered"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

type ScanStatus string

const (
	ScanSuccess ScanStatus = "success"
	ScanInvalid ScanStatus = "invalid"
)

type Event struct {
	ID          int64
	Title       string
	Starts      time.Time
	Ends        time.Time
	Capacity    int
	Status      EventStatus
	OrganizerID int64
}

// OpenForRegistration reports whether the event accepts new registrations.
func (e *Event) OpenForRegistration() bool {
	return e.Status == EventPublished
}

type User struct {
	ID    int64
	Email string
	Name  string
}

type Registration struct {
	ID           uuid.UUID
	EventID      int64
	UserID       int64
	Status       RegistrationStatus
	RegisteredAt time.Time
	CancelledAt  *time.Time
}

type Ticket struct {
	ID             uuid.UUID
	Code           string
	EventID        int64
	RegistrationID uuid.UUID
	Status         TicketStatus
	IssuedAt       time.Time
	ExpiresAt      *time.Time
	UsedAt         *time.Time
}

type Checkin struct {
	ID        uuid.UUID
	TicketID  uuid.UUID
	EventID   int64
	ScannerID int64
	Status    ScanStatus
	ScanTime  time.Time
}

// TicketDetails is the scan-time view of a ticket: everything the scanning
// station needs in a single lookup, without a second round trip.
type TicketDetails struct {
	Ticket
	AttendeeName  string
	AttendeeEmail string
	EventTitle    string
	EventStarts   time.Time
	EventEnds     time.Time
	EventStatus   EventStatus
}

// CheckinResult is returned to the scanning station on a successful redemption.
type CheckinResult struct {
	CheckinID    uuid.UUID
	TicketID     uuid.UUID
	AttendeeName string
	EventTitle   string
	// PriorStatus is the ticket status observed before the transition.
	PriorStatus TicketStatus
	RedeemedAt  time.Time
}

type AttendanceCounts struct {
	Registered int64
	Cancelled  int64
	CheckedIn  int64
	Capacity   int
}
