package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. Every provider setting is
// optional at startup; features that need a missing value fail on first use.
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	RunMigrations  bool
	UseMemoryStore bool

	// WhatsApp Cloud API
	WhatsAppAccessToken   string
	WhatsAppAPIVersion    string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppGraphBaseURL  string
	WhatsAppHTTPTimeout   time.Duration

	// Access control
	InboxAPIToken      string
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Media
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool
	MediaCacheTTL     time.Duration
	MediaFetchTimeout time.Duration
	FFmpegPath        string
	TranscodeTimeout  time.Duration

	// AWS (archive + notification queue)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ArchiveBucket       string
	NotifyWebhookURL    string
	NotifyQueueURL      string

	// Staff email alerts: SendGrid when a key is set, otherwise SES.
	NotifyEmailTo   string
	NotifyEmailFrom string
	SendGridAPIKey  string

	// Outbound send rate limit per client IP
	SendRatePerSecond float64
	SendRateBurst     int

	// Background tasks
	TaskWorkers    int
	TaskBuffer     int
	TaskTimeout    time.Duration
	ShutdownPeriod time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RunMigrations:  getEnvAsBool("RUN_MIGRATIONS", true),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppGraphBaseURL:  getEnv("WHATSAPP_GRAPH_BASE_URL", "https://graph.facebook.com"),
		WhatsAppHTTPTimeout:   getEnvAsDuration("WHATSAPP_HTTP_TIMEOUT", 10*time.Second),

		InboxAPIToken:      getEnv("INBOX_API_TOKEN", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
		MediaCacheTTL:     getEnvAsDuration("MEDIA_CACHE_TTL", 5*time.Minute),
		MediaFetchTimeout: getEnvAsDuration("MEDIA_FETCH_TIMEOUT", 30*time.Second),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		TranscodeTimeout:  getEnvAsDuration("TRANSCODE_TIMEOUT", 30*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ArchiveBucket:       getEnv("ARCHIVE_BUCKET", ""),
		NotifyWebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyQueueURL:      getEnv("NOTIFY_QUEUE_URL", ""),

		NotifyEmailTo:   getEnv("NOTIFY_EMAIL_TO", ""),
		NotifyEmailFrom: getEnv("NOTIFY_EMAIL_FROM", ""),
		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),

		SendRatePerSecond: getEnvAsFloat("SEND_RATE_PER_SECOND", 1),
		SendRateBurst:     getEnvAsInt("SEND_RATE_BURST", 5),

		TaskWorkers:    getEnvAsInt("TASK_WORKERS", 2),
		TaskBuffer:     getEnvAsInt("TASK_BUFFER", 256),
		TaskTimeout:    getEnvAsDuration("TASK_TIMEOUT", 15*time.Second),
		ShutdownPeriod: getEnvAsDuration("SHUTDOWN_PERIOD", 15*time.Second),
	}
}

// NeedsAWS reports whether any AWS-backed sink is configured.
func (c *Config) NeedsAWS() bool {
	return c.ArchiveBucket != "" || c.NotifyQueueURL != "" || c.UsesSES()
}

// UsesSES reports whether staff email alerts go through SES.
func (c *Config) UsesSES() bool {
	return c.NotifyEmailTo != "" && c.NotifyEmailFrom != "" && c.SendGridAPIKey == ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
