package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// Event announces a newly stored inbound message.
type Event struct {
	Type          string    `json:"type"`
	ParticipantID string    `json:"participant_id"`
	MessageID     string    `json:"message_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	Channel       string    `json:"channel"`
	Preview       string    `json:"preview"`
	ReceivedAt    time.Time `json:"received_at"`
}

// EventInboundMessage is the Type of every Event built by EventFromEntry.
const EventInboundMessage = "inbox.message.received"

// EventFromEntry builds the notification payload for a stored entry.
func EventFromEntry(entry inbox.Entry) Event {
	return Event{
		Type:          EventInboundMessage,
		ParticipantID: entry.ParticipantID,
		MessageID:     entry.MessageID,
		DisplayName:   entry.DisplayName,
		Channel:       entry.Channel,
		Preview:       entry.Preview,
		ReceivedAt:    entry.Timestamp,
	}
}

// Sink delivers one event to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt Event) error
}

// Service fans an event out to every configured sink.
type Service struct {
	sinks  []Sink
	logger *logging.Logger
}

// NewService creates a notification service; nil sinks are skipped.
func NewService(logger *logging.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{logger: logger}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// Enabled reports whether any sink is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// Notify delivers evt to all sinks. One failing sink does not stop the
// others; the joined error lists every failure.
func (s *Service) Notify(ctx context.Context, evt Event) error {
	if !s.Enabled() {
		return nil
	}
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, evt); err != nil {
			s.logger.Warn("notify: sink delivery failed", "sink", sink.Name(),
				"message_id", evt.MessageID, "error", err)
			errs = append(errs, fmt.Errorf("notify: %s: %w", sink.Name(), err))
			continue
		}
		s.logger.Debug("notify: delivered", "sink", sink.Name(), "message_id", evt.MessageID)
	}
	return errors.Join(errs...)
}
