package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the outbox publisher. A nil *OutboxMetrics is a no-op.
type OutboxMetrics struct {
	published    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	batch        prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events delivered to the broker.",
		}, []string{"event_type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Failed deliveries that will be retried.",
		}, []string{"event_type"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_events_dead_lettered_total",
			Help: "Events moved to the dead-letter table, by reason.",
		}, []string{"reason"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_batch_duration_seconds",
			Help:    "Time to claim, publish and settle one batch.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.published, m.failed, m.deadLettered, m.batch)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m != nil && m.published != nil {
		m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
	}
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m != nil && m.failed != nil {
		m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
	}
}

func (m *OutboxMetrics) IncDeadLettered(reason string) {
	if m != nil && m.deadLettered != nil {
		m.deadLettered.WithLabelValues(normalizeLabel(reason)).Inc()
	}
}

func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	if m != nil && m.batch != nil {
		m.batch.Observe(d.Seconds())
	}
}
