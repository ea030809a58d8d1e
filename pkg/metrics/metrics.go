// Package metrics turns lifecycle events from the bus into Prometheus
// counters.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"babybot/pkg/bus"
)

// Event outcome labels.
const (
	StatusOK      = "ok"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	events     *prometheus.CounterVec
	replies    prometheus.Counter
	mediaBytes prometheus.Counter
	records    *prometheus.CounterVec
}

// New registers the babybot collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "babybot",
			Name:      "events_total",
			Help:      "Webhook events handled, by event type and outcome.",
		}, []string{"type", "status"}),
		replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "babybot",
			Name:      "replies_total",
			Help:      "Replies sent through the messaging platform.",
		}),
		mediaBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "babybot",
			Name:      "media_bytes_total",
			Help:      "Bytes of media written to object storage.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "babybot",
			Name:      "records_total",
			Help:      "Activity records persisted, by category.",
		}, []string{"category"}),
	}

	m.registry.MustRegister(
		m.events,
		m.replies,
		m.mediaBytes,
		m.records,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe updates counters for one lifecycle event.
func (m *Metrics) Observe(event bus.Event) {
	switch event.Type {
	case bus.EventHandled:
		m.events.WithLabelValues(kindLabel(event.Kind), StatusOK).Inc()
	case bus.EventIgnored:
		m.events.WithLabelValues(kindLabel(event.Kind), StatusIgnored).Inc()
	case bus.EventFailed:
		m.events.WithLabelValues(kindLabel(event.Kind), StatusError).Inc()
	case bus.ReplySent:
		m.replies.Inc()
	case bus.MediaStored:
		if event.Bytes > 0 {
			m.mediaBytes.Add(float64(event.Bytes))
		}
	case bus.RecordSaved:
		m.records.WithLabelValues(event.Category).Inc()
	}
}

// Run observes events until the channel closes or ctx ends.
func (m *Metrics) Run(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.Observe(event)
		}
	}
}

func kindLabel(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return kind
}
