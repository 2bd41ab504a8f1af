package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
)

// ErrInvalidPayload is returned when the webhook body is not a JSON object.
var ErrInvalidPayload = errors.New("whatsapp: invalid webhook payload")

// DocumentPreviewPrefix distinguishes document filenames from message text.
const DocumentPreviewPrefix = "Document: "

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DecodeEnvelope picks the envelope variant from the top-level keys.
// Objects matching neither shape decode to an envelope with no changes.
// Entries, changes and messages that fail to decode are skipped; see Skipped.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil || probe == nil {
		return nil, ErrInvalidPayload
	}
	if _, ok := probe["entry"]; ok {
		var env EntryEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return env, nil
	}
	if _, ok := probe["value"]; ok {
		var env FieldEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return env, nil
	}
	return emptyEnvelope{}, nil
}

// Normalize flattens an envelope into inbox entries. Messages without a
// participant or a message id are dropped; status callbacks yield nothing.
func Normalize(env Envelope, now func() time.Time) []inbox.Entry {
	if env == nil {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	var entries []inbox.Entry
	for _, value := range env.changeValues() {
		for _, msg := range value.Messages {
			entry, ok := normalizeMessage(msg, value.Contacts, now)
			if !ok {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func normalizeMessage(msg Message, contacts []Contact, now func() time.Time) (inbox.Entry, bool) {
	var (
		participant string
		direction   inbox.Direction
	)
	switch {
	case msg.From.String() != "":
		participant = msg.From.String()
		direction = inbox.DirectionInbound
	case msg.To.String() != "":
		participant = msg.To.String()
		direction = inbox.DirectionOutbound
	default:
		return inbox.Entry{}, false
	}
	id := msg.ID.String()
	if id == "" {
		return inbox.Entry{}, false
	}

	text, hasText := ExtractText(msg)
	preview := text
	var body *string
	if hasText {
		body = &text
	} else {
		preview = placeholder(msg.Type)
	}

	return inbox.Entry{
		ParticipantID: participant,
		Direction:     direction,
		MessageID:     id,
		EventType:     msg.Type,
		DisplayName:   contactName(contacts, participant),
		Channel:       inbox.ChannelWhatsApp,
		Body:          body,
		Preview:       preview,
		Timestamp:     ParseTimestamp(string(msg.Timestamp), now),
		Raw:           msg.Raw,
	}, true
}

// ExtractText applies the preview rules in order and reports whether any
// text-bearing field matched.
func ExtractText(msg Message) (string, bool) {
	if msg.Text != nil && msg.Text.Body != "" {
		return msg.Text.Body, true
	}
	if msg.Button != nil && msg.Button.Text != "" {
		return msg.Button.Text, true
	}
	if msg.Interactive != nil {
		if r := msg.Interactive.ButtonReply; r != nil && r.Title != "" {
			return r.Title, true
		}
		if r := msg.Interactive.ListReply; r != nil && r.Title != "" {
			return r.Title, true
		}
	}
	if msg.Image != nil && msg.Image.Caption != "" {
		return msg.Image.Caption, true
	}
	if msg.Document != nil && msg.Document.Filename != "" {
		return DocumentPreviewPrefix + msg.Document.Filename, true
	}
	return "", false
}

// Preview returns the conversation-list text for a message.
func Preview(msg Message) string {
	if text, ok := ExtractText(msg); ok {
		return text
	}
	return placeholder(msg.Type)
}

func placeholder(msgType string) string {
	msgType = strings.TrimSpace(msgType)
	if msgType == "" {
		msgType = "unknown"
	}
	return "[" + msgType + " message]"
}

func contactName(contacts []Contact, participant string) string {
	for _, c := range contacts {
		if c.WaID.String() == participant && c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}

// ParseTimestamp accepts Unix seconds or an ISO date. Anything else
// resolves to now so one bad field cannot fail a whole batch.
func ParseTimestamp(raw string, now func() time.Time) time.Time {
	if now == nil {
		now = time.Now
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now().UTC()
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return time.Unix(int64(f), 0).UTC()
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return now().UTC()
}
