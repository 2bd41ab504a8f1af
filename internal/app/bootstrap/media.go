package bootstrap

import (
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/medspa-inbox/internal/config"
	"github.com/wolfman30/medspa-inbox/internal/media"
	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/internal/whatsapp"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// BuildWhatsAppClient creates the Graph API client. Missing credentials are
// reported by the client on first use, not here.
func BuildWhatsAppClient(cfg *appconfig.Config, logger *logging.Logger) *whatsapp.Client {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.WhatsAppAccessToken == "" || cfg.WhatsAppPhoneNumberID == "" {
		logger.Warn("whatsapp credentials incomplete; sends and media lookups will fail",
			"has_token", cfg.WhatsAppAccessToken != "", "has_phone_number_id", cfg.WhatsAppPhoneNumberID != "")
	}
	return whatsapp.NewClient(whatsapp.Config{
		AccessToken:   cfg.WhatsAppAccessToken,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		BaseURL:       cfg.WhatsAppGraphBaseURL,
		Timeout:       cfg.WhatsAppHTTPTimeout,
		Logger:        logger.Logger,
	})
}

// BuildMediaResolver wires the resolver with the ffmpeg transcoder and the
// optional Redis metadata cache.
func BuildMediaResolver(client media.GraphClient, redisClient *redis.Client, cfg *appconfig.Config, m *metrics.InboxMetrics, logger *logging.Logger) *media.Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return media.NewResolver(client, media.Options{
		Redis:        redisClient,
		CacheTTL:     cfg.MediaCacheTTL,
		FetchTimeout: cfg.MediaFetchTimeout,
		Transcoder:   media.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.TranscodeTimeout),
		Metrics:      m,
		Logger:       logger.Logger,
	})
}
