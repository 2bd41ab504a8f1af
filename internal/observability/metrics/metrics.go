package metrics

import "github.com/prometheus/client_golang/prometheus"

// InboxMetrics exposes counters/histograms for the webhook, media and send flows.
type InboxMetrics struct {
	entriesTotal     *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	mediaFetchTotal  *prometheus.CounterVec
	transcodeTotal   *prometheus.CounterVec
	transcodeLatency prometheus.Histogram
	taskFailures     *prometheus.CounterVec
}

func NewInboxMetrics(reg prometheus.Registerer) *InboxMetrics {
	m := &InboxMetrics{
		entriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "store",
			Name:      "entries_total",
			Help:      "Normalized entries recorded, by direction and whether they were new",
		}, []string{"direction", "result"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "outbound",
			Name:      "sends_total",
			Help:      "Outbound WhatsApp sends by outcome",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inbox",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		mediaFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "media",
			Name:      "fetch_total",
			Help:      "Media byte-fetch attempts by attempt number and outcome",
		}, []string{"attempt", "status"}),
		transcodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "media",
			Name:      "transcode_total",
			Help:      "Audio transcodes by outcome",
		}, []string{"status"}),
		transcodeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inbox",
			Subsystem: "media",
			Name:      "transcode_seconds",
			Help:      "Duration of audio transcodes",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "tasks",
			Name:      "failures_total",
			Help:      "Background tasks that failed or were dropped",
		}, []string{"task", "reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.entriesTotal, m.outboundTotal, m.webhookLatency,
		m.mediaFetchTotal, m.transcodeTotal, m.transcodeLatency, m.taskFailures)
	return m
}

func (m *InboxMetrics) ObserveEntry(direction string, inserted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if inserted {
		result = "inserted"
	}
	m.entriesTotal.WithLabelValues(direction, result).Inc()
}

func (m *InboxMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *InboxMetrics) ObserveWebhookLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}

func (m *InboxMetrics) ObserveMediaFetch(attempt, status string) {
	if m == nil {
		return
	}
	m.mediaFetchTotal.WithLabelValues(attempt, status).Inc()
}

func (m *InboxMetrics) ObserveTranscode(status string, seconds float64) {
	if m == nil {
		return
	}
	m.transcodeTotal.WithLabelValues(status).Inc()
	m.transcodeLatency.Observe(seconds)
}

func (m *InboxMetrics) ObserveTaskFailure(task, reason string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task, reason).Inc()
}
