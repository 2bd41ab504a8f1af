package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medspa-inbox/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medspa-inbox/internal/http/middleware"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// Pinger reports storage health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WhatsApp       *handlers.WhatsAppWebhookHandler
	Conversations  *handlers.ConversationsHandler
	Media          *handlers.MediaHandler
	Send           *handlers.SendHandler
	MetricsHandler http.Handler
	Storage        Pinger

	InboxAPIToken      string
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	SendLimiter        *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Storage))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsApp != nil {
			public.Get("/webhooks/whatsapp", cfg.WhatsApp.Verify)
			public.Post("/webhooks/whatsapp", cfg.WhatsApp.Receive)
		}
	})

	r.Group(func(inbox chi.Router) {
		inbox.Use(httpmiddleware.SharedToken(cfg.InboxAPIToken))
		if cfg.Media != nil {
			inbox.Get("/media/{mediaID}", cfg.Media.Get)
		}
		if cfg.Send != nil {
			inbox.With(httpmiddleware.RateLimit(cfg.SendLimiter)).Post("/messages/send", cfg.Send.Send)
		}
	})

	if cfg.Conversations != nil {
		r.Route("/conversations", func(convs chi.Router) {
			convs.Use(httpmiddleware.StaffJWT(cfg.AdminJWTSecret))
			convs.Get("/", cfg.Conversations.List)
			convs.Get("/{participantID}/messages", cfg.Conversations.Messages)
			convs.Post("/{participantID}/read", cfg.Conversations.MarkRead)
		})
	}

	return r
}

func healthHandler(storage Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		if storage != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := storage.Ping(ctx); err != nil {
				resp["status"] = "degraded"
				resp["storage"] = "unavailable"
				status = http.StatusServiceUnavailable
			} else {
				resp["storage"] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
