// Package notify delivers the ticket code to the registrant. Delivery is
// best-effort and out-of-band: a failed send is logged and dropped, it never
// rolls back the registration that triggered it.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// TicketMessage carries everything a dispatcher needs to reach the
// registrant.
type TicketMessage struct {
	RegistrationID uuid.UUID
	Code           string
	EventTitle     string
	RecipientEmail string
	RecipientName  string
}

type Dispatcher interface {
	SendTicket(ctx context.Context, msg TicketMessage) error
}

// LogDispatcher writes the would-be notification to the log. Used in
// development and as the fallback when SMTP is not configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendTicket(_ context.Context, msg TicketMessage) error {
	d.logger.Info("ticket notification",
		"registration_id", msg.RegistrationID,
		"event", msg.EventTitle,
		"recipient", msg.RecipientEmail,
	)
	return nil
}
