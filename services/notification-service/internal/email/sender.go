package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Invitation carries the fields of an INVITATION_REQUESTED payload that the
// mailer renders.
type Invitation struct {
	InviteeEmail    string `json:"inviteeEmail"`
	InviterUsername string `json:"inviterUsername"`
	EventTitle      string `json:"eventTitle"`
	EventStartAt    string `json:"eventStartAt"`
	EventAddress    string `json:"eventAddress"`
	EventCity       string `json:"eventCity"`
	Token           string `json:"token"`
}

type Sender interface {
	SendInvitation(inv Invitation) error
}

// SMTPSender sends invitation email via unauthenticated SMTP
// (Mailpit-compatible).
type SMTPSender struct {
	addr    string
	from    string
	baseURL string
}

func NewSMTPSender(host, port, from, frontendBaseURL string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@eventflow.local"
	}
	return &SMTPSender{
		addr:    fmt.Sprintf("%s:%s", host, port),
		from:    from,
		baseURL: strings.TrimRight(strings.TrimSpace(frontendBaseURL), "/"),
	}
}

func (s *SMTPSender) SendInvitation(inv Invitation) error {
	subject := "Invitation to event: " + inv.EventTitle
	msg := buildMessage(s.from, inv.InviteeEmail, subject, s.invitationBody(inv))
	return smtp.SendMail(s.addr, nil, s.from, []string{inv.InviteeEmail}, []byte(msg))
}

func (s *SMTPSender) invitationBody(inv Invitation) string {
	return fmt.Sprintf(`Hello,

You have been invited by %s to attend an event.

Event: %s
Date: %s
Location: %s, %s

To accept this invitation, click here:
%s/invite/accept?token=%s

To decline, click here:
%s/invite/decline?token=%s

This invitation expires in 48 hours.

EventFlow Team
`,
		inv.InviterUsername,
		inv.EventTitle,
		formatEventDate(inv.EventStartAt),
		inv.EventCity,
		inv.EventAddress,
		s.baseURL, inv.Token,
		s.baseURL, inv.Token,
	)
}

func formatEventDate(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("January 2, 2006 at 3:04 PM MST")
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// NoopSender is used when SMTP is not configured.
type NoopSender struct{}

func NewNoopSender() *NoopSender { return &NoopSender{} }

func (*NoopSender) SendInvitation(Invitation) error { return nil }
