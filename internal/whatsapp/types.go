package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is one of the webhook shapes Meta has delivered over time.
// Both variants expose the same change values so a single conversion
// function can normalize them.
type Envelope interface {
	changeValues() []ChangeValue
	skipped() int
}

// Skipped reports how many entries, changes, messages or contacts in env
// were dropped because they did not decode.
func Skipped(env Envelope) int {
	if env == nil {
		return 0
	}
	return env.skipped()
}

// EntryEnvelope is the documented shape: {"object": ..., "entry": [{"changes": [...]}]}.
type EntryEnvelope struct {
	Object string
	Entry  []Entry

	dropped int
}

// UnmarshalJSON decodes each entry on its own; a malformed entry is
// skipped instead of failing the delivery.
func (e *EntryEnvelope) UnmarshalJSON(data []byte) error {
	var aux struct {
		Object json.RawMessage `json:"object"`
		Entry  json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Object = lenientString(aux.Object)
	e.Entry, e.dropped = lenientList[Entry](aux.Entry)
	return nil
}

func (e EntryEnvelope) changeValues() []ChangeValue {
	var values []ChangeValue
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			values = append(values, change.Value)
		}
	}
	return values
}

func (e EntryEnvelope) skipped() int {
	n := e.dropped
	for _, entry := range e.Entry {
		n += entry.dropped
		for _, change := range entry.Changes {
			n += change.Value.dropped
		}
	}
	return n
}

// Entry is one business account entry inside an EntryEnvelope.
type Entry struct {
	ID      string
	Changes []Change

	dropped int
}

// UnmarshalJSON accepts changes as an array or as a single object.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID      json.RawMessage `json:"id"`
		Changes json.RawMessage `json:"changes"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.ID = lenientString(aux.ID)
	e.Changes, e.dropped = lenientList[Change](aux.Changes)
	return nil
}

// Change wraps a single field update.
type Change struct {
	Field string
	Value ChangeValue
}

// UnmarshalJSON tolerates a non-string field name; a value that is not an
// object fails the change.
func (c *Change) UnmarshalJSON(data []byte) error {
	var aux struct {
		Field json.RawMessage `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Field = lenientString(aux.Field)
	if len(aux.Value) == 0 {
		return nil
	}
	return json.Unmarshal(aux.Value, &c.Value)
}

// FieldEnvelope is the flat shape some test tools and older
// subscriptions send: {"field": "messages", "value": {...}}.
type FieldEnvelope struct {
	Field string
	Value ChangeValue

	dropped int
}

// UnmarshalJSON decodes the flat shape; an undecodable value counts as
// one skipped change.
func (e *FieldEnvelope) UnmarshalJSON(data []byte) error {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		*e = FieldEnvelope{dropped: 1}
		return nil
	}
	*e = FieldEnvelope{Field: c.Field, Value: c.Value}
	return nil
}

func (e FieldEnvelope) changeValues() []ChangeValue {
	return []ChangeValue{e.Value}
}

func (e FieldEnvelope) skipped() int {
	return e.dropped + e.Value.dropped
}

type emptyEnvelope struct{}

func (emptyEnvelope) changeValues() []ChangeValue { return nil }
func (emptyEnvelope) skipped() int                { return 0 }

// ChangeValue carries contacts, messages and status callbacks.
type ChangeValue struct {
	MessagingProduct string
	Metadata         Metadata
	Contacts         []Contact
	Messages         []Message
	Statuses         json.RawMessage

	dropped int
}

// UnmarshalJSON decodes messages and contacts one at a time so a single
// mistyped message does not lose the rest of the batch.
func (v *ChangeValue) UnmarshalJSON(data []byte) error {
	var aux struct {
		MessagingProduct json.RawMessage `json:"messaging_product"`
		Metadata         json.RawMessage `json:"metadata"`
		Contacts         json.RawMessage `json:"contacts"`
		Messages         json.RawMessage `json:"messages"`
		Statuses         json.RawMessage `json:"statuses"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.MessagingProduct = lenientString(aux.MessagingProduct)
	if len(aux.Metadata) > 0 {
		// Metadata is informational only.
		_ = json.Unmarshal(aux.Metadata, &v.Metadata)
	}
	var droppedContacts, droppedMessages int
	v.Contacts, droppedContacts = lenientList[Contact](aux.Contacts)
	v.Messages, droppedMessages = lenientList[Message](aux.Messages)
	v.Statuses = aux.Statuses
	v.dropped = droppedContacts + droppedMessages
	return nil
}

// Metadata identifies the business phone number that received the event.
type Metadata struct {
	DisplayPhoneNumber FlexString `json:"display_phone_number"`
	PhoneNumberID      FlexString `json:"phone_number_id"`
}

// Contact is the sender profile attached to inbound messages.
type Contact struct {
	WaID    FlexString `json:"wa_id"`
	Profile Profile    `json:"profile"`
}

// Profile holds the user-chosen display name.
type Profile struct {
	Name string `json:"name"`
}

// Message is a single message object. Raw keeps the exact bytes the
// provider sent so they can be stored for audit.
type Message struct {
	ID          FlexString   `json:"id"`
	From        FlexString   `json:"from"`
	To          FlexString   `json:"to"`
	Timestamp   Timestamp    `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Image       *MediaObject `json:"image,omitempty"`
	Document    *MediaObject `json:"document,omitempty"`
	Audio       *MediaObject `json:"audio,omitempty"`
	Video       *MediaObject `json:"video,omitempty"`
	Sticker     *MediaObject `json:"sticker,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the message and retains the raw bytes.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*m = Message(decoded)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// FlexString is an identifier the provider may send as a JSON string or
// number. Numbers keep their literal digits.
type FlexString string

// String returns the trimmed value.
func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		*f = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		*f = FlexString(n.String())
	default:
		return fmt.Errorf("whatsapp: expected string or number, got %s", raw)
	}
	return nil
}

func lenientString(data json.RawMessage) string {
	var f FlexString
	if err := json.Unmarshal(data, &f); err != nil {
		return ""
	}
	return f.String()
}

// lenientList decodes a JSON array element by element, skipping and
// counting elements that fail. A lone object is read as a one-item list.
func lenientList[T any](data json.RawMessage) ([]T, int) {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, 0
	}
	var elems []json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, 1
		}
	case '{':
		elems = []json.RawMessage{raw}
	default:
		return nil, 1
	}
	out := make([]T, 0, len(elems))
	dropped := 0
	for _, elem := range elems {
		var item T
		if err := json.Unmarshal(elem, &item); err != nil {
			dropped++
			continue
		}
		out = append(out, item)
	}
	return out, dropped
}

// Text is the payload of a text message.
type Text struct {
	Body string `json:"body"`
}

// Button is a quick-reply template button press.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Interactive covers button and list replies.
type Interactive struct {
	Type        string     `json:"type"`
	ButtonReply *ReplyItem `json:"button_reply,omitempty"`
	ListReply   *ReplyItem `json:"list_reply,omitempty"`
}

// ReplyItem is the selected option of an interactive message.
type ReplyItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MediaObject references an attachment by opaque media id.
type MediaObject struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

// Timestamp accepts either a JSON string or number and keeps the
// textual form; parsing happens during normalization.
type Timestamp string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*t = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	*t = Timestamp(raw)
	return nil
}

// SendTextRequest is the Graph API payload for a text message.
type SendTextRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             SendTextPayload `json:"text"`
}

// SendTextPayload is the text body of an outbound message.
type SendTextPayload struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// SendResponse is returned by POST /{phone-number-id}/messages.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []SentMessage `json:"messages"`
	Error    *GraphError   `json:"error,omitempty"`
}

// SentMessage carries the provider id of an accepted message.
type SentMessage struct {
	ID string `json:"id"`
}

// MessageID returns the first provider message id, if any.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// MediaMetadata is returned by GET /{media-id}.
type MediaMetadata struct {
	ID       string      `json:"id"`
	URL      string      `json:"url"`
	MimeType string      `json:"mime_type"`
	SHA256   string      `json:"sha256,omitempty"`
	FileSize int64       `json:"file_size,omitempty"`
	Error    *GraphError `json:"error,omitempty"`
}

// GraphError is the error object embedded in Graph API responses.
type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}
