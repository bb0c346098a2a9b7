package httpgin

import (
	"time"

	"github.com/kmelnyk/gatecheck/internal/domain"
)

type RegisterRequest struct {
	EventID int64 `json:"event_id" binding:"required"`
	UserID  int64 `json:"user_id" binding:"required"`
}

type RegistrationResponse struct {
	RegistrationID string     `json:"registration_id"`
	EventID        int64      `json:"event_id"`
	UserID         int64      `json:"user_id"`
	Status         string     `json:"status"`
	RegisteredAt   time.Time  `json:"registered_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	TicketCode     string     `json:"ticket_code,omitempty"`
	TicketStatus   string     `json:"ticket_status,omitempty"`
}

func toRegistrationResponse(reg *domain.Registration, t *domain.Ticket) RegistrationResponse {
	resp := RegistrationResponse{
		RegistrationID: reg.ID.String(),
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		Status:         string(reg.Status),
		RegisteredAt:   reg.RegisteredAt,
		CancelledAt:    reg.CancelledAt,
	}

	if t != nil {
		resp.TicketCode = t.Code
		resp.TicketStatus = string(t.Status)
	}

	return resp
}

type ScanRequest struct {
	Code      string `json:"code" binding:"required"`
	EventID   int64  `json:"event_id" binding:"required"`
	ScannerID int64  `json:"scanner_id" binding:"required"`
}

type ScanResponse struct {
	Result     string    `json:"result"`
	CheckinID  string    `json:"checkin_id"`
	Attendee   string    `json:"attendee"`
	EventTitle string    `json:"event_title"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// ScanErrorResponse carries the distinct rejection kind so the scanning UI
// can show "already used at 14:02 by Alice" instead of a blank error.
type ScanErrorResponse struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type TicketResponse struct {
	Code        string     `json:"code"`
	Status      string     `json:"status"`
	Attendee    string     `json:"attendee"`
	EventID     int64      `json:"event_id"`
	EventTitle  string     `json:"event_title"`
	EventStarts time.Time  `json:"event_starts"`
	EventEnds   time.Time  `json:"event_ends"`
	IssuedAt    time.Time  `json:"issued_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
}

func toTicketResponse(d *domain.TicketDetails) TicketResponse {
	return TicketResponse{
		Code:        d.Code,
		Status:      string(d.Status),
		Attendee:    d.AttendeeName,
		EventID:     d.EventID,
		EventTitle:  d.EventTitle,
		EventStarts: d.EventStarts,
		EventEnds:   d.EventEnds,
		IssuedAt:    d.IssuedAt,
		UsedAt:      d.UsedAt,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}
