package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-inbox/cmd/mainconfig"
	"github.com/wolfman30/medspa-inbox/internal/api/router"
	"github.com/wolfman30/medspa-inbox/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medspa-inbox/internal/config"
	"github.com/wolfman30/medspa-inbox/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medspa-inbox/internal/http/middleware"
	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/internal/outbound"
	"github.com/wolfman30/medspa-inbox/internal/tasks"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

func main() {
	// Local runs read .env; deployed environments set real variables.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting inbox API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()
	if cfg.RunMigrations && cfg.DatabaseURL != "" && !cfg.UseMemoryStore {
		if err := bootstrap.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build app", "error", err)
		os.Exit(1)
	}
	defer app.close()
	app.dispatcher.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Media transcodes can take a while.
		WriteTimeout: cfg.MediaFetchTimeout + cfg.TranscodeTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := app.dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background tasks did not drain", "error", err)
	}
	logger.Info("server stopped")
}

type app struct {
	handler    http.Handler
	dispatcher *tasks.Dispatcher
	storage    *bootstrap.InboxStorage
	redis      *redis.Client
	limiter    *httpmiddleware.RateLimiter
}

func (a *app) close() {
	a.limiter.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.storage.Close()
}

// setupMetrics returns the /metrics handler and the inbox collectors on a
// dedicated registry.
func setupMetrics() (http.Handler, *metrics.InboxMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewInboxMetrics(reg)
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	metricsHandler, inboxMetrics := setupMetrics()

	storage, err := bootstrap.BuildInboxStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var awsCfg *aws.Config
	if cfg.NeedsAWS() {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			storage.Close()
			return nil, err
		}
		awsCfg = &loaded
	}

	dispatcher := tasks.New(logger,
		tasks.WithWorkers(cfg.TaskWorkers),
		tasks.WithBuffer(cfg.TaskBuffer),
		tasks.WithJobTimeout(cfg.TaskTimeout),
		tasks.WithMetrics(inboxMetrics),
	)

	webhookCfg := handlers.WhatsAppWebhookConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
		Store:       storage.Repository,
		Tasks:       dispatcher,
		Metrics:     inboxMetrics,
		Logger:      logger,
	}
	if notifier := bootstrap.BuildNotifier(cfg, awsCfg, logger); notifier.Enabled() {
		webhookCfg.Notifier = notifier
	}
	if archiveStore := bootstrap.BuildArchive(cfg, awsCfg, logger); archiveStore != nil {
		webhookCfg.Archiver = archiveStore
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	waClient := bootstrap.BuildWhatsAppClient(cfg, logger)
	resolver := bootstrap.BuildMediaResolver(waClient, redisClient, cfg, inboxMetrics, logger)
	sender := outbound.NewSender(waClient, storage.Repository, cfg.WhatsAppHTTPTimeout, inboxMetrics, logger.Logger)
	limiter := httpmiddleware.NewRateLimiter(cfg.SendRatePerSecond, cfg.SendRateBurst)

	routerCfg := &router.Config{
		Logger:             logger,
		WhatsApp:           handlers.NewWhatsAppWebhookHandler(webhookCfg),
		Conversations:      handlers.NewConversationsHandler(storage.Repository, logger),
		Media:              handlers.NewMediaHandler(resolver, logger),
		Send:               handlers.NewSendHandler(sender, logger),
		MetricsHandler:     metricsHandler,
		InboxAPIToken:      cfg.InboxAPIToken,
		AdminJWTSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SendLimiter:        limiter,
	}
	if storage.Pinger != nil {
		routerCfg.Storage = storage.Pinger
	}

	return &app{
		handler:    router.New(routerCfg),
		dispatcher: dispatcher,
		storage:    storage,
		redis:      redisClient,
		limiter:    limiter,
	}, nil
}
