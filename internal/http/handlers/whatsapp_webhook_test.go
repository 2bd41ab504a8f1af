package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/internal/whatsapp"
)

const appSecret = "app-secret"

const deliveryBody = `{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{
	"messaging_product":"whatsapp",
	"contacts":[{"wa_id":"15551234567","profile":{"name":"Ana"}}],
	"messages":[
		{"id":"wamid.A","from":"15551234567","timestamp":"1700000000","type":"text","text":{"body":"hola"}},
		{"id":"wamid.B","from":"15551234567","timestamp":"1700000060","type":"image","image":{"id":"MEDIA1"}}
	]}}]}]}`

type webhookFixture struct {
	handler  *WhatsAppWebhookHandler
	store    *inbox.MemoryStore
	tasks    *inlineTasks
	notifier *recordingNotifier
	archiver *recordingArchiver
	reg      *prometheus.Registry
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		store:    inbox.NewMemoryStore(),
		tasks:    &inlineTasks{},
		notifier: &recordingNotifier{},
		archiver: &recordingArchiver{},
		reg:      prometheus.NewRegistry(),
	}
	f.handler = NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{
		VerifyToken: "verify-me",
		AppSecret:   appSecret,
		Store:       f.store,
		Tasks:       f.tasks,
		Notifier:    f.notifier,
		Archiver:    f.archiver,
		Metrics:     metrics.NewInboxMetrics(f.reg),
	})
	return f
}

func signedDelivery(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(body)))
	req.Header.Set(whatsapp.SignatureHeader, whatsapp.Sign(appSecret, []byte(body)))
	return req
}

func assertEntries(t *testing.T, reg *prometheus.Registry, samples ...string) {
	t.Helper()
	expected := "# HELP inbox_store_entries_total Normalized entries recorded, by direction and whether they were new\n" +
		"# TYPE inbox_store_entries_total counter\n" + strings.Join(samples, "\n") + "\n"
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "inbox_store_entries_total"))
}

func TestWebhookVerify(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	f.handler.Verify(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	f.handler.Verify(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "12345")
}

func TestWebhookReceiveStoresAndNotifies(t *testing.T) {
	f := newWebhookFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Receive(rec, signedDelivery(deliveryBody))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ack webhookAck
	decodeBody(t, rec, &ack)
	assert.Equal(t, webhookAck{Received: 2, Stored: 2}, ack)

	msgs, err := f.store.GetMessages(context.Background(), "15551234567")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "wamid.A", msgs[0].MessageID)
	assert.Nil(t, msgs[1].Body)

	convs, err := f.store.ListConversations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].UnreadCount)

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, "wamid.A", f.notifier.events[0].MessageID)
	assert.Equal(t, 1, f.tasks.count("archive"))
	require.Len(t, f.archiver.bodies, 1)
	assert.Equal(t, deliveryBody, string(f.archiver.bodies[0]))
	assertEntries(t, f.reg, `inbox_store_entries_total{direction="inbound",result="inserted"} 2`)
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		f.handler.Receive(rec, signedDelivery(deliveryBody))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	msgs, err := f.store.GetMessages(context.Background(), "15551234567")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	// Only first-time inserts notify.
	assert.Len(t, f.notifier.events, 2)
	assertEntries(t, f.reg,
		`inbox_store_entries_total{direction="inbound",result="duplicate"} 2`,
		`inbox_store_entries_total{direction="inbound",result="inserted"} 2`)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "malformed", header: "md5=abc"},
		{name: "wrong secret", header: whatsapp.Sign("other", []byte(deliveryBody))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(deliveryBody)))
			if tt.header != "" {
				req.Header.Set(whatsapp.SignatureHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			f.handler.Receive(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			convs, _ := f.store.ListConversations(context.Background(), "")
			assert.Empty(t, convs)
			assert.Empty(t, f.archiver.bodies)
		})
	}
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	f := newWebhookFixture(t)
	rec := httptest.NewRecorder()
	f.handler.Receive(rec, signedDelivery(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.archiver.bodies)
}

func TestWebhookAcknowledgesStatusOnlyDelivery(t *testing.T) {
	f := newWebhookFixture(t)
	body := `{"field":"messages","value":{"statuses":[{"id":"wamid.X","status":"delivered"}]}}`
	rec := httptest.NewRecorder()
	f.handler.Receive(rec, signedDelivery(body))

	require.Equal(t, http.StatusOK, rec.Code)
	var ack webhookAck
	decodeBody(t, rec, &ack)
	assert.Zero(t, ack.Received)
	assert.Empty(t, f.notifier.events)
}

func TestWebhookStorageFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unavailable", err: unavailable(), want: http.StatusServiceUnavailable},
		{name: "query bug", err: errors.New("inbox: record: syntax error"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			h := NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{
				AppSecret: appSecret,
				Store:     brokenStore{err: tt.err},
				Tasks:     &inlineTasks{},
				Notifier:  notifier,
			})
			rec := httptest.NewRecorder()
			h.Receive(rec, signedDelivery(deliveryBody))
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, notifier.events)
		})
	}
}

func TestWebhookWithoutSecretAcceptsUnsigned(t *testing.T) {
	store := inbox.NewMemoryStore()
	h := NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{Store: store})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader([]byte(deliveryBody)))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	msgs, err := store.GetMessages(context.Background(), "15551234567")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestWebhookStoresValidMessagesBesideMistypedOne(t *testing.T) {
	f := newWebhookFixture(t)
	body := `{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{
		"messages":[
			{"id":"wamid.ok","from":"15550001","type":"text","text":{"body":"ok"}},
			{"id":"wamid.num","from":15550002,"type":"text","text":{"body":"numeric sender"}},
			{"id":"wamid.bad","from":"15550003","type":"text","text":["not","an","object"]}
		]}}]}]}`

	rec := httptest.NewRecorder()
	f.handler.Receive(rec, signedDelivery(body))

	require.Equal(t, http.StatusOK, rec.Code)
	var ack webhookAck
	decodeBody(t, rec, &ack)
	assert.Equal(t, webhookAck{Received: 2, Stored: 2}, ack)

	msgs, err := f.store.GetMessages(context.Background(), "15550002")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "wamid.num", msgs[0].MessageID)
}
