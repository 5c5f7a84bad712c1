package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/customeros/mailintake/internal/enum"
)

const (
	RunResultOK        = "ok"
	RunResultError     = "error"
	RunResultLeaseHeld = "lease_held"
)

// Metrics holds all Prometheus metrics. Every Observe method is a no-op on a
// nil *Metrics.
type Metrics struct {
	Outcomes           *prometheus.CounterVec
	DroppedAttachments *prometheus.CounterVec
	Runs               *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	MessageDuration    prometheus.Histogram
	Watermark          *prometheus.GaugeVec
	LeaseContention    *prometheus.CounterVec
	NotifyFailures     prometheus.Counter
}

// NewMetrics registers the ingest metrics on reg. Pass prometheus.DefaultRegisterer
// to expose them on /metrics, or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailintake_messages_total",
			Help: "Messages reaching a terminal ingest outcome",
		}, []string{"mailbox", "status", "reason"}),
		DroppedAttachments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailintake_dropped_attachments_total",
			Help: "Attachments rejected by the attachment policy",
		}, []string{"mailbox"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailintake_runs_total",
			Help: "Mailbox runs by result",
		}, []string{"mailbox", "result"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailintake_run_duration_seconds",
			Help:    "Time spent on a single mailbox run",
			Buckets: prometheus.DefBuckets,
		}, []string{"mailbox"}),
		MessageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailintake_message_duration_seconds",
			Help:    "Time spent processing one message",
			Buckets: prometheus.DefBuckets,
		}),
		Watermark: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailintake_watermark_uid",
			Help: "Last persisted watermark per mailbox",
		}, []string{"mailbox"}),
		LeaseContention: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailintake_lease_held_total",
			Help: "Runs skipped because another holder owned the mailbox lease",
		}, []string{"mailbox"}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailintake_notify_failures_total",
			Help: "Ticket notifications that failed or timed out",
		}),
	}
}

func (m *Metrics) ObserveOutcome(mailbox string, status enum.IngestStatus, reason enum.IngestReason) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(mailbox, string(status), string(reason)).Inc()
}

func (m *Metrics) ObserveDropped(mailbox string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.DroppedAttachments.WithLabelValues(mailbox).Add(float64(count))
}

func (m *Metrics) ObserveMessageDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.MessageDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLeaseHeld(mailbox string) {
	if m == nil {
		return
	}
	m.LeaseContention.WithLabelValues(mailbox).Inc()
	m.Runs.WithLabelValues(mailbox, RunResultLeaseHeld).Inc()
}

// ObserveRun records a finished run and the watermark it left behind.
func (m *Metrics) ObserveRun(mailbox string, failed bool, d time.Duration, watermark uint32) {
	if m == nil {
		return
	}
	result := RunResultOK
	if failed {
		result = RunResultError
	}
	m.Runs.WithLabelValues(mailbox, result).Inc()
	m.RunDuration.WithLabelValues(mailbox).Observe(d.Seconds())
	m.Watermark.WithLabelValues(mailbox).Set(float64(watermark))
}

func (m *Metrics) ObserveNotifyFailure() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}
