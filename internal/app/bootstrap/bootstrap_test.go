package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/medspa-inbox/internal/config"
	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when REDIS_ADDR is empty")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildInboxStorageRequiresConfig(t *testing.T) {
	if _, err := BuildInboxStorage(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildInboxStorageMemory(t *testing.T) {
	storage, err := BuildInboxStorage(context.Background(), &appconfig.Config{UseMemoryStore: true}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer storage.Close()
	if _, ok := storage.Repository.(*inbox.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", storage.Repository)
	}
	if storage.Pinger != nil {
		t.Fatalf("memory store should not report health")
	}
}

func TestBuildInboxStorageWithoutDatabaseIsUnavailable(t *testing.T) {
	storage, err := BuildInboxStorage(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = storage.Repository.ListConversations(context.Background(), "")
	if !inbox.IsUnavailable(err) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if err := storage.Pinger.Ping(context.Background()); !inbox.IsUnavailable(err) {
		t.Fatalf("expected ping to report unavailable, got %v", err)
	}
}

func TestBuildNotifier(t *testing.T) {
	logger := logging.New("error")

	if svc := BuildNotifier(&appconfig.Config{}, nil, logger); svc.Enabled() {
		t.Fatalf("expected notifier disabled without sinks")
	}

	cfg := &appconfig.Config{NotifyWebhookURL: "http://127.0.0.1:1/hook"}
	if svc := BuildNotifier(cfg, nil, logger); !svc.Enabled() {
		t.Fatalf("expected webhook sink to enable notifier")
	}

	// Queue and SES sinks need AWS config; without it they are skipped.
	cfg = &appconfig.Config{NotifyQueueURL: "http://localhost/q", NotifyEmailTo: "a@example.com", NotifyEmailFrom: "b@example.com"}
	if svc := BuildNotifier(cfg, nil, logger); svc.Enabled() {
		t.Fatalf("expected AWS sinks skipped without AWS config")
	}

	awsCfg := &aws.Config{Region: "us-east-1"}
	if svc := BuildNotifier(cfg, awsCfg, logger); !svc.Enabled() {
		t.Fatalf("expected SQS and SES sinks with AWS config")
	}
}

func TestBuildEmailSinkPrefersSendGrid(t *testing.T) {
	cfg := &appconfig.Config{NotifyEmailTo: "a@example.com", NotifyEmailFrom: "b@example.com", SendGridAPIKey: "SG.key"}
	if sink := buildEmailSink(cfg, nil); sink == nil {
		t.Fatalf("expected SendGrid email sink without AWS config")
	}
}

func TestBuildArchive(t *testing.T) {
	if store := BuildArchive(&appconfig.Config{}, &aws.Config{Region: "us-east-1"}, nil); store != nil {
		t.Fatalf("expected nil archive without bucket")
	}
	store := BuildArchive(&appconfig.Config{ArchiveBucket: "inbox-archive"}, &aws.Config{Region: "us-east-1"}, nil)
	if !store.Enabled() {
		t.Fatalf("expected archive enabled with bucket")
	}
}

func TestBuildMediaResolver(t *testing.T) {
	cfg := &appconfig.Config{WhatsAppAPIVersion: "v21.0"}
	client := BuildWhatsAppClient(cfg, logging.New("error"))
	if client == nil {
		t.Fatalf("expected client")
	}
	if resolver := BuildMediaResolver(client, nil, cfg, nil, nil); resolver == nil {
		t.Fatalf("expected resolver")
	}
}
