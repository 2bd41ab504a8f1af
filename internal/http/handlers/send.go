package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/medspa-inbox/internal/outbound"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

const maxSendBody = 64 << 10

// MessageSender delivers an outbound text and records it.
type MessageSender interface {
	Send(ctx context.Context, to, text string) (*outbound.Result, error)
}

type sendRequest struct {
	To   string `json:"to" validate:"required,max=32"`
	Text string `json:"text" validate:"required,max=4096"`
}

// SendHandler serves POST /messages/send.
type SendHandler struct {
	sender   MessageSender
	validate *validator.Validate
	logger   *logging.Logger
}

func NewSendHandler(sender MessageSender, logger *logging.Logger) *SendHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendHandler{
		sender:   sender,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, h.logger.Logger, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}
	req.To = strings.TrimSpace(req.To)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger.Logger, fmt.Errorf("%w: %s", errBadRequest, describeValidation(err)))
		return
	}

	res, err := h.sender.Send(r.Context(), req.To, req.Text)
	if err != nil && res == nil {
		writeError(w, h.logger.Logger, err)
		return
	}
	if err != nil {
		// Delivered but not recorded; the caller still needs the ids.
		h.logger.Error("outbound message sent but not recorded", "to", res.To, "error", err)
	}
	writeJSON(w, http.StatusOK, res)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s exceeds %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
