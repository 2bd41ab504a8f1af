package inbox

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations and messages in Postgres.
type Store struct {
	pool PgxPool
	now  func() time.Time
}

// NewStore returns nil when pool is nil; every method on a nil store
// reports ErrStorageUnavailable.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool, now: time.Now}
}

// Last-message fields are overwritten unconditionally. An older event that
// arrives after a newer one becomes the displayed last message.
const upsertConversationSQL = `
	INSERT INTO inbox_conversations (participant_id, display_name, channel, last_message_preview, last_message_at)
	VALUES ($1, NULLIF($2, ''), $3, $4, $5)
	ON CONFLICT (participant_id) DO UPDATE
	SET display_name = COALESCE(EXCLUDED.display_name, inbox_conversations.display_name),
		channel = EXCLUDED.channel,
		last_message_preview = EXCLUDED.last_message_preview,
		last_message_at = EXCLUDED.last_message_at
`

const insertMessageSQL = `
	INSERT INTO inbox_messages (message_id, participant_id, direction, body, sent_at, raw, read_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (message_id) DO NOTHING
`

// Record upserts the conversation and inserts the message once. A repeated
// message id is a silent no-op reported through RecordResult.Inserted.
//
// The conversation's last-message fields are overwritten unconditionally:
// an older event delivered after a newer one becomes the displayed last
// message.
func (s *Store) Record(ctx context.Context, entry Entry) (RecordResult, error) {
	if s == nil || s.pool == nil {
		return RecordResult{}, ErrStorageUnavailable
	}
	entry.ParticipantID = strings.TrimSpace(entry.ParticipantID)
	entry.MessageID = strings.TrimSpace(entry.MessageID)
	if entry.ParticipantID == "" || entry.MessageID == "" || !entry.Direction.Valid() {
		return RecordResult{}, ErrInvalidEntry
	}
	if entry.Channel == "" {
		entry.Channel = ChannelWhatsApp
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	var readAt *time.Time
	if entry.Direction == DirectionOutbound {
		ts := entry.Timestamp
		readAt = &ts
	}
	var raw any
	if len(entry.Raw) > 0 {
		raw = []byte(entry.Raw)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RecordResult{}, classify("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertConversationSQL,
		entry.ParticipantID, entry.DisplayName, entry.Channel, entry.Preview, entry.Timestamp,
	); err != nil {
		return RecordResult{}, classify("upsert conversation", err)
	}
	tag, err := tx.Exec(ctx, insertMessageSQL,
		entry.MessageID, entry.ParticipantID, string(entry.Direction), entry.Body, entry.Timestamp, raw, readAt,
	)
	if err != nil {
		return RecordResult{}, classify("insert message", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return RecordResult{}, classify("commit", err)
	}
	return RecordResult{Inserted: tag.RowsAffected() > 0}, nil
}

// RecordInbound stores an entry received from a participant.
func (s *Store) RecordInbound(ctx context.Context, entry Entry) (RecordResult, error) {
	entry.Direction = DirectionInbound
	return s.Record(ctx, entry)
}

// RecordOutbound stores an entry sent to a participant; it is born read.
func (s *Store) RecordOutbound(ctx context.Context, entry Entry) (RecordResult, error) {
	entry.Direction = DirectionOutbound
	return s.Record(ctx, entry)
}

// ListConversations returns summaries, most recent first with never-messaged
// conversations last. An empty channel matches every channel.
func (s *Store) ListConversations(ctx context.Context, channel string) ([]Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStorageUnavailable
	}
	query := `
		SELECT c.participant_id, c.display_name, c.channel, c.last_message_preview,
			c.last_message_at, c.created_at,
			(SELECT COUNT(*) FROM inbox_messages m
				WHERE m.participant_id = c.participant_id
					AND m.direction = 'inbound'
					AND m.read_at IS NULL) AS unread_count
		FROM inbox_conversations c
		WHERE ($1 = '' OR c.channel = $1)
		ORDER BY c.last_message_at DESC NULLS LAST, c.participant_id
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, strings.TrimSpace(channel), MaxConversations)
	if err != nil {
		return nil, classify("list conversations", err)
	}
	defer rows.Close()

	conversations := make([]Conversation, 0)
	for rows.Next() {
		var c Conversation
		var unread int64
		if err := rows.Scan(&c.ParticipantID, &c.DisplayName, &c.Channel, &c.LastMessagePreview,
			&c.LastMessageAt, &c.CreatedAt, &unread); err != nil {
			return nil, classify("scan conversation", err)
		}
		c.UnreadCount = int(unread)
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list conversations", err)
	}
	return conversations, nil
}

// GetMessages returns the latest MaxMessages messages, oldest first.
func (s *Store) GetMessages(ctx context.Context, participantID string) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStorageUnavailable
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, ErrInvalidEntry
	}
	query := `
		SELECT message_id, participant_id, direction, body, sent_at, raw, read_at
		FROM (
			SELECT message_id, participant_id, direction, body, sent_at, raw, read_at, created_at
			FROM inbox_messages
			WHERE participant_id = $1
			ORDER BY sent_at DESC, created_at DESC
			LIMIT $2
		) recent
		ORDER BY sent_at ASC, created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, participantID, MaxMessages)
	if err != nil {
		return nil, classify("get messages", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		var direction string
		var raw []byte
		if err := rows.Scan(&m.MessageID, &m.ParticipantID, &direction, &m.Body, &m.SentAt, &raw, &m.ReadAt); err != nil {
			return nil, classify("scan message", err)
		}
		m.Direction = Direction(direction)
		if len(raw) > 0 {
			m.Raw = raw
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get messages", err)
	}
	return messages, nil
}

// MarkRead stamps every unread inbound message for the participant and
// returns how many rows changed. Outbound and already-read rows are untouched.
func (s *Store) MarkRead(ctx context.Context, participantID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStorageUnavailable
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return 0, ErrInvalidEntry
	}
	query := `
		UPDATE inbox_messages
		SET read_at = $2
		WHERE participant_id = $1
			AND direction = 'inbound'
			AND read_at IS NULL
	`
	tag, err := s.pool.Exec(ctx, query, participantID, s.now().UTC())
	if err != nil {
		return 0, classify("mark read", err)
	}
	return tag.RowsAffected(), nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrStorageUnavailable
	}
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return classify("ping", err)
	}
	return nil
}
