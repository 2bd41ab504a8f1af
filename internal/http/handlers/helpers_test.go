package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-inbox/internal/inbox"
	"github.com/wolfman30/medspa-inbox/internal/notify"
	"github.com/wolfman30/medspa-inbox/internal/tasks"
)

// inlineTasks runs submitted jobs synchronously so tests can assert on them.
type inlineTasks struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (i *inlineTasks) Submit(name string, fn tasks.Func) bool {
	err := fn(context.Background())
	i.mu.Lock()
	defer i.mu.Unlock()
	i.names = append(i.names, name)
	i.errs = append(i.errs, err)
	return true
}

func (i *inlineTasks) count(name string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, got := range i.names {
		if got == name {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, evt notify.Event) error {
	r.events = append(r.events, evt)
	return nil
}

type recordingArchiver struct {
	bodies [][]byte
}

func (r *recordingArchiver) ArchiveWebhook(_ context.Context, source string, body []byte, _ time.Time) (string, error) {
	r.bodies = append(r.bodies, body)
	return "webhooks/" + source + "/key.json", nil
}

// brokenStore fails every call with err.
type brokenStore struct {
	err error
}

func (b brokenStore) Record(context.Context, inbox.Entry) (inbox.RecordResult, error) {
	return inbox.RecordResult{}, b.err
}

func (b brokenStore) ListConversations(context.Context, string) ([]inbox.Conversation, error) {
	return nil, b.err
}

func (b brokenStore) GetMessages(context.Context, string) ([]inbox.Message, error) {
	return nil, b.err
}

func (b brokenStore) MarkRead(context.Context, string) (int64, error) {
	return 0, b.err
}

func unavailable() error {
	return fmt.Errorf("inbox: record: %w", inbox.ErrStorageUnavailable)
}

// withURLParam attaches a chi route param to req.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
