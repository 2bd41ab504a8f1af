package inbox

import (
	"encoding/json"
	"time"
)

// ChannelWhatsApp is the only channel ingested today; the column exists so
// other channels can share the tables later.
const ChannelWhatsApp = "whatsapp"

const (
	// MaxConversations bounds ListConversations.
	MaxConversations = 200
	// MaxMessages bounds GetMessages.
	MaxMessages = 500
)

// Direction says who sent a message relative to the business.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// Entry is one normalized (contact, message) pair ready to be recorded.
type Entry struct {
	ParticipantID string
	Direction     Direction
	MessageID     string
	EventType     string
	DisplayName   string
	Channel       string
	// Body is the text content; nil for message types without text.
	Body *string
	// Preview is what the conversation list shows for this message.
	Preview   string
	Timestamp time.Time
	Raw       json.RawMessage
}

// Conversation is the per-participant summary row.
type Conversation struct {
	ParticipantID      string     `json:"participant_id"`
	DisplayName        *string    `json:"display_name,omitempty"`
	Channel            string     `json:"channel"`
	LastMessagePreview *string    `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UnreadCount        int        `json:"unread_count"`
}

// Message is a stored message row.
type Message struct {
	MessageID     string          `json:"message_id"`
	ParticipantID string          `json:"participant_id"`
	Direction     Direction       `json:"direction"`
	Body          *string         `json:"body,omitempty"`
	SentAt        time.Time       `json:"sent_at"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	ReadAt        *time.Time      `json:"read_at,omitempty"`
}

// RecordResult reports what Record did.
type RecordResult struct {
	// Inserted is false when the message id was already stored.
	Inserted bool
}
