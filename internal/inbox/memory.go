package inbox

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository is implemented by Store and MemoryStore.
type Repository interface {
	Record(ctx context.Context, entry Entry) (RecordResult, error)
	ListConversations(ctx context.Context, channel string) ([]Conversation, error)
	GetMessages(ctx context.Context, participantID string) ([]Message, error)
	MarkRead(ctx context.Context, participantID string) (int64, error)
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*MemoryStore)(nil)
)

// MemoryStore is a process-local Repository for development and tests.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]*Message
	seen          map[string]struct{}
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		seen:          make(map[string]struct{}),
		now:           time.Now,
	}
}

func (m *MemoryStore) Record(_ context.Context, entry Entry) (RecordResult, error) {
	entry.ParticipantID = strings.TrimSpace(entry.ParticipantID)
	entry.MessageID = strings.TrimSpace(entry.MessageID)
	if entry.ParticipantID == "" || entry.MessageID == "" || !entry.Direction.Valid() {
		return RecordResult{}, ErrInvalidEntry
	}
	if entry.Channel == "" {
		entry.Channel = ChannelWhatsApp
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now().UTC()
	}
	conv, ok := m.conversations[entry.ParticipantID]
	if !ok {
		conv = &Conversation{ParticipantID: entry.ParticipantID, CreatedAt: m.now().UTC()}
		m.conversations[entry.ParticipantID] = conv
	}
	if entry.DisplayName != "" {
		name := entry.DisplayName
		conv.DisplayName = &name
	}
	preview := entry.Preview
	ts := entry.Timestamp
	conv.Channel = entry.Channel
	conv.LastMessagePreview = &preview
	conv.LastMessageAt = &ts

	if _, dup := m.seen[entry.MessageID]; dup {
		return RecordResult{Inserted: false}, nil
	}
	m.seen[entry.MessageID] = struct{}{}

	msg := &Message{
		MessageID:     entry.MessageID,
		ParticipantID: entry.ParticipantID,
		Direction:     entry.Direction,
		Body:          entry.Body,
		SentAt:        entry.Timestamp,
		Raw:           entry.Raw,
	}
	if entry.Direction == DirectionOutbound {
		readAt := entry.Timestamp
		msg.ReadAt = &readAt
	}
	m.messages[entry.ParticipantID] = append(m.messages[entry.ParticipantID], msg)
	return RecordResult{Inserted: true}, nil
}

func (m *MemoryStore) RecordInbound(ctx context.Context, entry Entry) (RecordResult, error) {
	entry.Direction = DirectionInbound
	return m.Record(ctx, entry)
}

func (m *MemoryStore) RecordOutbound(ctx context.Context, entry Entry) (RecordResult, error) {
	entry.Direction = DirectionOutbound
	return m.Record(ctx, entry)
}

func (m *MemoryStore) ListConversations(_ context.Context, channel string) ([]Conversation, error) {
	channel = strings.TrimSpace(channel)
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Conversation, 0, len(m.conversations))
	for id, conv := range m.conversations {
		if channel != "" && conv.Channel != channel {
			continue
		}
		c := *conv
		c.UnreadCount = 0
		for _, msg := range m.messages[id] {
			if msg.Direction == DirectionInbound && msg.ReadAt == nil {
				c.UnreadCount++
			}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return out[i].ParticipantID < out[j].ParticipantID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		default:
			return out[i].ParticipantID < out[j].ParticipantID
		}
	})
	if len(out) > MaxConversations {
		out = out[:MaxConversations]
	}
	return out, nil
}

func (m *MemoryStore) GetMessages(_ context.Context, participantID string) ([]Message, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, ErrInvalidEntry
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.messages[participantID]
	out := make([]Message, 0, len(stored))
	for _, msg := range stored {
		out = append(out, *msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	if len(out) > MaxMessages {
		out = out[len(out)-MaxMessages:]
	}
	return out, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, participantID string) (int64, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return 0, ErrInvalidEntry
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var changed int64
	for _, msg := range m.messages[participantID] {
		if msg.Direction != DirectionInbound || msg.ReadAt != nil {
			continue
		}
		readAt := now
		msg.ReadAt = &readAt
		changed++
	}
	return changed, nil
}
