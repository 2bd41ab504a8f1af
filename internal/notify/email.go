package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultFromName = "Clinic Inbox"

// EmailSender delivers one email. SendGrid and SES implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// EmailSink emails staff when a new inbound message is stored.
type EmailSink struct {
	sender EmailSender
	to     string
}

// NewEmailSink returns nil when sender or recipient is missing.
func NewEmailSink(sender EmailSender, to string) *EmailSink {
	to = strings.TrimSpace(to)
	if sender == nil || to == "" {
		return nil
	}
	return &EmailSink{sender: sender, to: to}
}

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Deliver(ctx context.Context, evt Event) error {
	return e.sender.Send(ctx, EmailMessage{
		To:      e.to,
		Subject: emailSubject(evt),
		Body:    emailBody(evt),
	})
}

func emailSubject(evt Event) string {
	from := evt.DisplayName
	if from == "" {
		from = "+" + evt.ParticipantID
	}
	return fmt.Sprintf("New %s message from %s", evt.Channel, from)
}

func emailBody(evt Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: +%s", evt.ParticipantID)
	if evt.DisplayName != "" {
		fmt.Fprintf(&b, " (%s)", evt.DisplayName)
	}
	fmt.Fprintf(&b, "\nReceived: %s\n\n%s\n", evt.ReceivedAt.UTC().Format("2006-01-02 15:04 MST"), evt.Preview)
	return b.String()
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

// Send sends a plain-text email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmailPlainText(from, msg.Subject, to, msg.Body)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}
	return nil
}

var _ EmailSender = (*SendGridSender)(nil)
