package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// ConversationReader is the read side of the inbox store.
type ConversationReader interface {
	ListConversations(ctx context.Context, channel string) ([]inbox.Conversation, error)
	GetMessages(ctx context.Context, participantID string) ([]inbox.Message, error)
	MarkRead(ctx context.Context, participantID string) (int64, error)
}

// ConversationsHandler serves the inbox UI's listing, history and read state.
type ConversationsHandler struct {
	store  ConversationReader
	logger *logging.Logger
}

func NewConversationsHandler(store ConversationReader, logger *logging.Logger) *ConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationsHandler{store: store, logger: logger}
}

// List returns conversations newest first. When storage is down the UI
// still gets a well-formed empty list alongside the 503.
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	convs, err := h.store.ListConversations(r.Context(), channel)
	if err != nil {
		if inbox.IsUnavailable(err) {
			h.logger.Warn("conversation list degraded", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, []inbox.Conversation{})
			return
		}
		writeError(w, h.logger.Logger, err)
		return
	}
	if convs == nil {
		convs = []inbox.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// Messages returns a participant's recent history, oldest first.
func (h *ConversationsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	participantID, err := participantParam(r)
	if err != nil {
		writeError(w, h.logger.Logger, err)
		return
	}
	msgs, err := h.store.GetMessages(r.Context(), participantID)
	if err != nil {
		writeError(w, h.logger.Logger, err)
		return
	}
	if msgs == nil {
		msgs = []inbox.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type markReadResponse struct {
	ParticipantID string `json:"participant_id"`
	Updated       int64  `json:"updated"`
}

// MarkRead clears the unread count for a participant.
func (h *ConversationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	participantID, err := participantParam(r)
	if err != nil {
		writeError(w, h.logger.Logger, err)
		return
	}
	n, err := h.store.MarkRead(r.Context(), participantID)
	if err != nil {
		writeError(w, h.logger.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{ParticipantID: participantID, Updated: n})
}

func participantParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "participantID"))
	if id == "" {
		return "", fmt.Errorf("%w: participant id is required", errBadRequest)
	}
	return id, nil
}
