package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/medspa-inbox/internal/config"
	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available; media metadata cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// InboxStorage is the store the API runs on plus its optional pool.
type InboxStorage struct {
	Repository inbox.Repository
	Pinger     interface{ Ping(context.Context) error }
	Pool       *pgxpool.Pool
}

// Close releases the pool, if any.
func (s *InboxStorage) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// BuildInboxStorage picks the conversation store. Without DATABASE_URL the
// Postgres store is left unconfigured and every call reports
// inbox.ErrStorageUnavailable, unless USE_MEMORY_STORE is set.
func BuildInboxStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*InboxStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory inbox store; data is lost on restart")
		return &InboxStorage{Repository: inbox.NewMemoryStore()}, nil
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; inbox storage unavailable")
		var store *inbox.Store
		return &InboxStorage{Repository: store, Pinger: store}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	store := inbox.NewStore(pool)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		// Keep serving; requests report storage unavailable until it recovers.
		logger.Warn("postgres not reachable at startup", "error", err)
	}
	return &InboxStorage{Repository: store, Pinger: store, Pool: pool}, nil
}
