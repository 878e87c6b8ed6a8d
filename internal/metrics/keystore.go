package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// KeyStoreMetrics tracks CRUD operations against the persistent table
type KeyStoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	valueBytes        *prometheus.HistogramVec
}

// NewKeyStoreMetrics registers key store metrics with the collector
func NewKeyStoreMetrics(collector *Collector) *KeyStoreMetrics {
	return &KeyStoreMetrics{
		operationsTotal: collector.RegisterCounter(
			MetricOperationsTotal,
			"Total key store operations by operation and outcome",
			[]string{LabelOperation, LabelStatus},
		),
		operationDuration: collector.RegisterHistogram(
			MetricOperationDuration,
			"Key store operation latency in seconds",
			[]string{LabelOperation},
			nil,
		),
		valueBytes: collector.RegisterHistogram(
			MetricValueBytes,
			"Size of values written, in bytes",
			[]string{LabelOperation},
			prometheus.ExponentialBuckets(16, 4, 9),
		),
	}
}

// RecordOperation records the outcome and latency of one operation. status is
// StatusOK or a short error kind such as "not_found".
func (m *KeyStoreMetrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordValueSize records the size of a value accepted for writing
func (m *KeyStoreMetrics) RecordValueSize(operation string, size int) {
	if m == nil {
		return
	}
	m.valueBytes.WithLabelValues(operation).Observe(float64(size))
}
