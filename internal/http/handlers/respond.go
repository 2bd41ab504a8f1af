package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/internal/media"
	"github.com/wolfman30/medspa-inbox/internal/outbound"
	"github.com/wolfman30/medspa-inbox/internal/whatsapp"
)

type errorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamCode   int    `json:"upstream_code,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Anything unclassified
// is logged and reported as a 500 without leaking the cause.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body := classifyError(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func classifyError(err error) (int, errorResponse) {
	var apiErr *whatsapp.APIError
	var fetchErr *media.FetchError
	switch {
	case whatsapp.IsSignatureError(err):
		return http.StatusUnauthorized, errorResponse{Error: "invalid signature"}
	case errors.Is(err, whatsapp.ErrSubscriptionRejected):
		return http.StatusForbidden, errorResponse{Error: "verification failed"}
	case errors.Is(err, whatsapp.ErrInvalidPayload),
		errors.Is(err, outbound.ErrInvalidRecipient),
		errors.Is(err, outbound.ErrEmptyText),
		errors.Is(err, media.ErrInvalidMediaID),
		errors.Is(err, inbox.ErrInvalidEntry),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, whatsapp.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorResponse{Error: "messaging provider not configured"}
	case inbox.IsUnavailable(err):
		return http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"}
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, errorResponse{
			Error:          "media fetch failed",
			UpstreamStatus: fetchErr.Status,
			UpstreamBody:   fetchErr.Body,
		}
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, errorResponse{
			Error:          apiErr.Message,
			UpstreamStatus: apiErr.Status,
			UpstreamCode:   apiErr.Code,
		}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
}

var errBadRequest = errors.New("bad request")
