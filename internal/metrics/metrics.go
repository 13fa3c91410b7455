// Package metrics holds the Prometheus collectors of the marketplace core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "market"

type Metrics struct {
	operations *prometheus.HistogramVec
	txRetries  *prometheus.CounterVec
	checkouts  *prometheus.CounterVec
	events     *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of core operations by outcome kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_retries_total",
			Help:      "Transactions retried after a store conflict.",
		}, []string{"operation"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome kind.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to the publisher, by result.",
		}, []string{"type", "result"}),
	}
	reg.MustRegister(m.operations, m.txRetries, m.checkouts, m.events)
	return m
}

func (m *Metrics) ObserveOperation(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) TxRetry(op string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.events.WithLabelValues(eventType, result).Inc()
}
