// Package metrics exposes Prometheus counters for checkout and webhook reconciliation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcomes beyond the ones stored on processed events.
const (
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeReplayed     = "replayed"
)

// Metrics owns a private registry so tests can create as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	WebhookReceived  *prometheus.CounterVec
	WebhookOutcomes  *prometheus.CounterVec
	WebhookRejected  *prometheus.CounterVec
	CheckoutSessions *prometheus.CounterVec
	ApplyDuration    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		WebhookReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kansha",
			Name:      "webhook_events_received_total",
			Help:      "Verified Stripe webhook events by event type.",
		}, []string{"type"}),
		WebhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kansha",
			Name:      "webhook_events_outcome_total",
			Help:      "Webhook events by apply outcome.",
		}, []string{"outcome"}),
		WebhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kansha",
			Name:      "webhook_requests_rejected_total",
			Help:      "Webhook deliveries rejected before processing.",
		}, []string{"reason"}),
		CheckoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kansha",
			Name:      "checkout_sessions_created_total",
			Help:      "Checkout sessions created by kind (product or subscription).",
		}, []string{"kind"}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kansha",
			Name:      "webhook_apply_duration_seconds",
			Help:      "Time spent applying one webhook event, retries included.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.WebhookReceived,
		m.WebhookOutcomes,
		m.WebhookRejected,
		m.CheckoutSessions,
		m.ApplyDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Outcome(outcome string) {
	m.WebhookOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Rejected(reason string) {
	m.WebhookRejected.WithLabelValues(reason).Inc()
}
