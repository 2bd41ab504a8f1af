package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/internal/whatsapp"
)

var (
	ErrInvalidRecipient = errors.New("outbound: recipient has no digits")
	ErrEmptyText        = errors.New("outbound: message text is required")
)

const localIDPrefix = "local-"

// TextSender is the part of whatsapp.Client used for sends.
type TextSender interface {
	SendText(ctx context.Context, to, text string) (*whatsapp.SendResponse, error)
}

// Recorder persists the sent message.
type Recorder interface {
	Record(ctx context.Context, entry inbox.Entry) (inbox.RecordResult, error)
}

// Result describes a completed send. ProviderMessageID is empty when the
// provider did not return one; MessageID is the id the inbox stored.
type Result struct {
	To                string    `json:"to"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	MessageID         string    `json:"message_id"`
	SentAt            time.Time `json:"sent_at"`
}

// Sender sends text messages and records them as read outbound entries.
type Sender struct {
	client   TextSender
	recorder Recorder
	timeout  time.Duration
	metrics  *metrics.InboxMetrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewSender(client TextSender, recorder Recorder, timeout time.Duration, m *metrics.InboxMetrics, logger *slog.Logger) *Sender {
	if client == nil {
		panic("outbound: client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		client:   client,
		recorder: recorder,
		timeout:  timeout,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Send delivers text to the digits-only form of to. A provider failure is
// returned as *whatsapp.APIError and nothing is recorded. When recording
// fails after a successful send the result is still returned alongside the
// storage error so the caller knows the message went out.
func (s *Sender) Send(ctx context.Context, to, text string) (*Result, error) {
	recipient := NormalizeRecipient(to)
	if recipient == "" {
		return nil, ErrInvalidRecipient
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	base := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()

	resp, err := s.client.SendText(callCtx, recipient, text)
	if err != nil {
		s.metrics.ObserveOutbound("failed")
		s.logger.Warn("whatsapp send failed", "to", recipient, "error", err)
		return nil, err
	}
	s.metrics.ObserveOutbound("sent")

	result := &Result{
		To:                recipient,
		ProviderMessageID: resp.MessageID(),
		MessageID:         resp.MessageID(),
		SentAt:            s.now().UTC(),
	}
	if result.MessageID == "" {
		result.MessageID = localIDPrefix + uuid.NewString()
		s.logger.Warn("whatsapp send returned no message id; storing local id",
			"to", recipient, "message_id", result.MessageID)
	}
	if s.recorder == nil {
		return result, nil
	}

	// The store write gets its own deadline; a slow provider may have used
	// most of the send deadline.
	recordCtx, cancelRecord := context.WithTimeout(base, s.timeout)
	defer cancelRecord()

	body := text
	rec, err := s.recorder.Record(recordCtx, inbox.Entry{
		ParticipantID: recipient,
		Direction:     inbox.DirectionOutbound,
		MessageID:     result.MessageID,
		EventType:     "text",
		Channel:       inbox.ChannelWhatsApp,
		Body:          &body,
		Preview:       text,
		Timestamp:     result.SentAt,
	})
	if err != nil {
		return result, fmt.Errorf("outbound: record sent message: %w", err)
	}
	s.metrics.ObserveEntry(string(inbox.DirectionOutbound), rec.Inserted)
	return result, nil
}

// NormalizeRecipient keeps only ASCII digits, so "+1 (555) 010-2030"
// becomes "15550102030".
func NormalizeRecipient(to string) string {
	var b strings.Builder
	for _, r := range to {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
