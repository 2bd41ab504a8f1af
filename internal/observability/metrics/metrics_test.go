package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestInboxMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInboxMetrics(reg)
	m.ObserveEntry("inbound", true)
	m.ObserveEntry("inbound", true)
	m.ObserveEntry("inbound", false)
	m.ObserveOutbound("sent")
	m.ObserveWebhookLatency("ok", 0.05)
	m.ObserveMediaFetch("1", "error")
	m.ObserveMediaFetch("2", "ok")
	m.ObserveTranscode("failed", 0.2)
	m.ObserveTaskFailure("notify", "dropped")

	if got := testutil.ToFloat64(m.entriesTotal.WithLabelValues("inbound", "inserted")); got != 2 {
		t.Fatalf("inserted entries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.entriesTotal.WithLabelValues("inbound", "duplicate")); got != 1 {
		t.Fatalf("duplicate entries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.mediaFetchTotal.WithLabelValues("2", "ok")); got != 1 {
		t.Fatalf("fallback fetches = %v, want 1", got)
	}

	var hist dto.Metric
	if err := m.transcodeLatency.Write(&hist); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if hist.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one transcode sample, got %d", hist.GetHistogram().GetSampleCount())
	}
}

func TestInboxMetricsDefaultRegistry(t *testing.T) {
	m := NewInboxMetrics(nil)
	m.ObserveOutbound("failed")
}

func TestInboxMetricsNilSafe(t *testing.T) {
	var m *InboxMetrics
	m.ObserveEntry("inbound", true)
	m.ObserveOutbound("sent")
	m.ObserveWebhookLatency("ok", 0.1)
	m.ObserveMediaFetch("1", "ok")
	m.ObserveTranscode("ok", 0.1)
	m.ObserveTaskFailure("archive", "error")
}
