package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	contractMetricsOnce sync.Once
	contractRegistry    *ContractMetrics

	sessionMetricsOnce sync.Once
	sessionRegistry    *SessionMetrics
)

// ContractMetrics tracks reads, writes and confirmations against the BlockCoop
// contract and the ERC-20 tokens it manages.
type ContractMetrics struct {
	calls        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	confirmation *prometheus.HistogramVec
	slow         *prometheus.CounterVec
	throttled    prometheus.Counter
}

// Contract returns the singleton contract metrics registry.
func Contract() *ContractMetrics {
	contractMetricsOnce.Do(func() {
		contractRegistry = &ContractMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "blockcoop",
				Subsystem: "contract",
				Name:      "calls_total",
				Help:      "Contract calls segmented by method, error kind and outcome.",
			}, []string{"method", "kind", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "blockcoop",
				Subsystem: "contract",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for contract reads and submissions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			confirmation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "blockcoop",
				Subsystem: "tx",
				Name:      "confirmation_seconds",
				Help:      "Time between submission and confirmation of a transaction.",
				Buckets:   []float64{1, 2, 5, 10, 20, 45, 90, 180, 600},
			}, []string{"method", "status"}),
			slow: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "blockcoop",
				Subsystem: "tx",
				Name:      "slow_confirmations_total",
				Help:      "Transactions that were still pending after the slow threshold.",
			}, []string{"method"}),
			throttled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "blockcoop",
				Subsystem: "contract",
				Name:      "throttled_reads_total",
				Help:      "Reads that waited on the client side rate limiter.",
			}),
		}
		prometheus.MustRegister(
			contractRegistry.calls,
			contractRegistry.latency,
			contractRegistry.confirmation,
			contractRegistry.slow,
			contractRegistry.throttled,
		)
	})
	return contractRegistry
}

// ObserveCall records the outcome of a single contract call. kind is the stable
// error label, empty on success.
func (m *ContractMetrics) ObserveCall(method, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	method = normalizeLabel(method)
	outcome := "success"
	if kind != "" {
		outcome = "error"
	} else {
		kind = "none"
	}
	m.calls.WithLabelValues(method, kind, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveConfirmation records how long a transaction took to be mined.
func (m *ContractMetrics) ObserveConfirmation(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.confirmation.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Observe(duration.Seconds())
}

// RecordSlow increments the slow confirmation counter.
func (m *ContractMetrics) RecordSlow(method string) {
	if m == nil {
		return
	}
	m.slow.WithLabelValues(normalizeLabel(method)).Inc()
}

// RecordThrottle counts a read delayed by the rate limiter.
func (m *ContractMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}

// SessionMetrics tracks wallet session state.
type SessionMetrics struct {
	connected prometheus.Gauge
	changes   *prometheus.CounterVec
}

// Session returns the singleton session metrics registry.
func Session() *SessionMetrics {
	sessionMetricsOnce.Do(func() {
		sessionRegistry = &SessionMetrics{
			connected: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "blockcoop",
				Subsystem: "session",
				Name:      "connected",
				Help:      "1 while a wallet session is established.",
			}),
			changes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "blockcoop",
				Subsystem: "session",
				Name:      "changes_total",
				Help:      "Session transitions segmented by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(sessionRegistry.connected, sessionRegistry.changes)
	})
	return sessionRegistry
}

// SetConnected flips the connected gauge.
func (m *SessionMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// RecordChange counts a session transition.
func (m *SessionMetrics) RecordChange(kind string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
