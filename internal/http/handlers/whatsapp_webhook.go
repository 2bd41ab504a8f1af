package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/internal/notify"
	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/internal/tasks"
	"github.com/wolfman30/medspa-inbox/internal/whatsapp"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

const maxWebhookBody = 5 << 20

// EntryRecorder stores normalized entries.
type EntryRecorder interface {
	Record(ctx context.Context, entry inbox.Entry) (inbox.RecordResult, error)
}

// TaskSubmitter queues work that must not hold up the webhook response.
type TaskSubmitter interface {
	Submit(name string, fn tasks.Func) bool
}

// Notifier announces newly stored inbound messages.
type Notifier interface {
	Notify(ctx context.Context, evt notify.Event) error
}

// Archiver keeps a copy of raw webhook deliveries.
type Archiver interface {
	ArchiveWebhook(ctx context.Context, source string, body []byte, receivedAt time.Time) (string, error)
}

// WhatsAppWebhookConfig wires the webhook handler. Notifier, Archiver and
// Tasks are optional; side effects are skipped when any is nil.
type WhatsAppWebhookConfig struct {
	VerifyToken string
	AppSecret   string
	Store       EntryRecorder
	Tasks       TaskSubmitter
	Notifier    Notifier
	Archiver    Archiver
	Metrics     *metrics.InboxMetrics
	Logger      *logging.Logger
}

// WhatsAppWebhookHandler serves the subscription handshake and signed
// message deliveries.
type WhatsAppWebhookHandler struct {
	verifyToken string
	appSecret   string
	store       EntryRecorder
	tasks       TaskSubmitter
	notifier    Notifier
	archiver    Archiver
	metrics     *metrics.InboxMetrics
	logger      *logging.Logger
	now         func() time.Time
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Store == nil {
		panic("handlers: whatsapp webhook requires a store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.AppSecret == "" {
		logger.Warn("whatsapp app secret not set; webhook signatures are not verified")
	}
	return &WhatsAppWebhookHandler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		store:       cfg.Store,
		tasks:       cfg.Tasks,
		notifier:    cfg.Notifier,
		archiver:    cfg.Archiver,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Verify answers GET hub.mode/hub.verify_token/hub.challenge.
func (h *WhatsAppWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := whatsapp.VerifySubscription(
		q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), h.verifyToken)
	if err != nil {
		h.logger.Warn("whatsapp subscription rejected", "mode", q.Get("hub.mode"))
		writeError(w, h.logger.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

type webhookAck struct {
	Received int `json:"received"`
	Stored   int `json:"stored"`
}

// Receive handles a signed delivery. Nothing is persisted unless the
// signature checks out and the body decodes.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "ok"
	defer func() {
		h.metrics.ObserveWebhookLatency(status, time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		status = "bad_body"
		writeError(w, h.logger.Logger, fmt.Errorf("%w: unreadable body", errBadRequest))
		return
	}
	if err := whatsapp.VerifySignature(h.appSecret, body, r.Header.Get(whatsapp.SignatureHeader)); err != nil {
		status = "unauthorized"
		h.logger.Warn("whatsapp webhook signature rejected", "error", err)
		writeError(w, h.logger.Logger, err)
		return
	}
	env, err := whatsapp.DecodeEnvelope(body)
	if err != nil {
		status = "invalid"
		writeError(w, h.logger.Logger, err)
		return
	}

	if skipped := whatsapp.Skipped(env); skipped > 0 {
		h.logger.Warn("skipped undecodable webhook items", "count", skipped)
	}

	receivedAt := h.now().UTC()
	h.archive(body, receivedAt)

	// A provider that drops the connection still gets its entries stored.
	ctx := context.WithoutCancel(r.Context())
	entries := whatsapp.Normalize(env, h.now)
	ack := webhookAck{Received: len(entries)}
	for _, entry := range entries {
		res, err := h.store.Record(ctx, entry)
		if err != nil {
			status = "store_error"
			h.logger.Error("failed to record whatsapp entry", "message_id", entry.MessageID, "error", err)
			writeError(w, h.logger.Logger, err)
			return
		}
		h.metrics.ObserveEntry(string(entry.Direction), res.Inserted)
		if !res.Inserted {
			h.logger.Debug("duplicate whatsapp delivery", "message_id", entry.MessageID)
			continue
		}
		ack.Stored++
		if entry.Direction == inbox.DirectionInbound {
			h.notify(entry)
		}
	}

	writeJSON(w, http.StatusOK, ack)
}

func (h *WhatsAppWebhookHandler) notify(entry inbox.Entry) {
	if h.notifier == nil || h.tasks == nil {
		return
	}
	evt := notify.EventFromEntry(entry)
	h.tasks.Submit("notify", func(ctx context.Context) error {
		return h.notifier.Notify(ctx, evt)
	})
}

func (h *WhatsAppWebhookHandler) archive(body []byte, receivedAt time.Time) {
	if h.archiver == nil || h.tasks == nil {
		return
	}
	h.tasks.Submit("archive", func(ctx context.Context) error {
		_, err := h.archiver.ArchiveWebhook(ctx, inbox.ChannelWhatsApp, body, receivedAt)
		return err
	})
}
