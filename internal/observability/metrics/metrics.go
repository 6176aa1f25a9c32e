// Package metrics exposes operational counters for the reconciliation path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	registry *prometheus.Registry

	webhookEvents        *prometheus.CounterVec
	duplicatesSuppressed prometheus.Counter
	alerts               *prometheus.CounterVec
	labelPurchases       *prometheus.CounterVec
	handleDuration       *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "webhook_events_total",
			Help:      "Webhook events processed by type and disposition.",
		}, []string{"type", "disposition"}),
		duplicatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "webhook_duplicates_suppressed_total",
			Help:      "Concurrent webhook deliveries coalesced by the deduplicator.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "alerts_total",
			Help:      "Outbound alert attempts by outcome.",
		}, []string{"type", "outcome"}),
		labelPurchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "label_purchases_total",
			Help:      "Shipping label purchase attempts by result.",
		}, []string{"result"}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "webhook_handle_duration_seconds",
			Help:      "Reconciliation handler duration by event type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.webhookEvents,
		m.duplicatesSuppressed,
		m.alerts,
		m.labelPurchases,
		m.handleDuration,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordWebhookEvent(eventType, disposition string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, disposition).Inc()
}

func (m *Metrics) RecordDuplicateSuppressed() {
	if m == nil {
		return
	}
	m.duplicatesSuppressed.Inc()
}

func (m *Metrics) RecordAlert(alertType, outcome string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType, outcome).Inc()
}

func (m *Metrics) RecordLabelPurchase(result string) {
	if m == nil {
		return
	}
	m.labelPurchases.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHandleDuration(eventType string, d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
