package storage

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results recorded by Metrics.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Metrics instruments record store operations.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the store collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchroom",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Record store operations by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matchroom",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Backend latency of record store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"collection", "op"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration)
	}
	return m
}

// Operations returns the operation counter, for tests and exporters.
func (m *Metrics) Operations() *prometheus.CounterVec { return m.operations }

func (m *Metrics) observe(c Collection, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := resultOK
	switch {
	case errors.Is(err, ErrKeyNotFound):
		result = resultNotFound
	case err != nil:
		result = resultError
	}
	m.operations.WithLabelValues(string(c), op, result).Inc()
	m.duration.WithLabelValues(string(c), op).Observe(time.Since(start).Seconds())
}
