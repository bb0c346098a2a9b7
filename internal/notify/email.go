package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailDispatcher sends the ticket code and its QR image over SMTP.
type EmailDispatcher struct {
	cfg SMTPConfig
}

func NewEmailDispatcher(cfg SMTPConfig) *EmailDispatcher {
	return &EmailDispatcher{cfg: cfg}
}

func (d *EmailDispatcher) SendTicket(ctx context.Context, msg TicketMessage) error {
	const op = "notify.EmailDispatcher.SendTicket"

	png, err := RenderQR(msg.Code)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	body := buildMIME(d.cfg.From, msg, png)

	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
	auth := smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, d.cfg.From, []string{msg.RecipientEmail}, body)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s:%w", op, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	}
}

const boundary = "gatecheck-ticket"

func buildMIME(from string, msg TicketMessage, qrPNG []byte) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.RecipientEmail)
	fmt.Fprintf(&b, "Subject: Your ticket for %s\r\n", msg.EventTitle)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", msg.RecipientName)
	fmt.Fprintf(&b, "You are registered for %s.\r\n", msg.EventTitle)
	fmt.Fprintf(&b, "Your ticket code: %s\r\n", msg.Code)
	b.WriteString("Show the attached QR code at check-in.\r\n\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: image/png\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("Content-Disposition: attachment; filename=ticket.png\r\n\r\n")

	enc := base64.StdEncoding.EncodeToString(qrPNG)
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteString("\r\n")
		enc = enc[76:]
	}
	b.WriteString(enc)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return b.Bytes()
}
