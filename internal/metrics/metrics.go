// Package metrics exposes Prometheus collectors for entity operations and
// quad churn.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the entity manager
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	triplesAdded      *prometheus.CounterVec
	triplesRemoved    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg, which may be nil. namespace
// prefixes every metric name; empty means "quadmap".
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "quadmap"
	}

	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of entity operations by outcome",
			},
			[]string{"op", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of entity operations",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		triplesAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triples_added_total",
				Help:      "Total number of quads added per store",
			},
			[]string{"store"},
		),
		triplesRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triples_removed_total",
				Help:      "Total number of quads removed per store",
			},
			[]string{"store"},
		),
	}

	if reg != nil {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operationsTotal, m.operationDuration, m.triplesAdded, m.triplesRemoved}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// QuadsAdded implements mapping.Observer.
func (m *Metrics) QuadsAdded(storeID string, n int) {
	if m == nil {
		return
	}
	m.triplesAdded.WithLabelValues(storeID).Add(float64(n))
}

// QuadsRemoved implements mapping.Observer.
func (m *Metrics) QuadsRemoved(storeID string, n int) {
	if m == nil {
		return
	}
	m.triplesRemoved.WithLabelValues(storeID).Add(float64(n))
}
