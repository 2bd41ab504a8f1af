package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-inbox/internal/media"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// MediaResolver turns a provider media id into playable bytes.
type MediaResolver interface {
	Resolve(ctx context.Context, mediaID string) (*media.Result, error)
}

// MediaHandler proxies provider media to the inbox UI.
type MediaHandler struct {
	resolver MediaResolver
	logger   *logging.Logger
}

func NewMediaHandler(resolver MediaResolver, logger *logging.Logger) *MediaHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &MediaHandler{resolver: resolver, logger: logger}
}

func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")
	res, err := h.resolver.Resolve(r.Context(), mediaID)
	if err != nil {
		h.logger.Warn("media resolve failed", "media_id", mediaID, "error", err)
		writeError(w, h.logger.Logger, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}
