package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	listeners *prometheus.GaugeVec
	delivered *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking contract event listeners.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			listeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "blockcoop",
				Subsystem: "events",
				Name:      "listeners",
				Help:      "Active live event listeners segmented by event name.",
			}, []string{"event"}),
			delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "blockcoop",
				Subsystem: "events",
				Name:      "delivered_total",
				Help:      "Decoded contract events delivered to consumers.",
			}, []string{"event", "source"}),
		}
		prometheus.MustRegister(eventRegistry.listeners, eventRegistry.delivered)
	})
	return eventRegistry
}

// ListenerAdded increments the listener gauge for name.
func (m *eventMetrics) ListenerAdded(name string) {
	if m == nil {
		return
	}
	m.listeners.WithLabelValues(normalizeLabel(name)).Inc()
}

// ListenerRemoved decrements the listener gauge for name.
func (m *eventMetrics) ListenerRemoved(name string) {
	if m == nil {
		return
	}
	m.listeners.WithLabelValues(normalizeLabel(name)).Dec()
}

// RecordDelivered counts an event handed to a consumer. source is "history" or "live".
func (m *eventMetrics) RecordDelivered(name, source string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(name), normalizeLabel(source)).Inc()
}
