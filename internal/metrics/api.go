package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics tracks HTTP requests and admission control
type APIMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimitedTotal *prometheus.CounterVec
}

// NewAPIMetrics registers API metrics with the collector
func NewAPIMetrics(collector *Collector) *APIMetrics {
	return &APIMetrics{
		requestsTotal: collector.RegisterCounter(
			MetricAPIRequestsTotal,
			"Total HTTP requests by method, endpoint, and status",
			[]string{LabelMethod, LabelEndpoint, LabelStatus},
		),
		requestDuration: collector.RegisterHistogram(
			MetricAPIRequestDuration,
			"HTTP request latency in seconds",
			[]string{LabelMethod, LabelEndpoint},
			prometheus.DefBuckets,
		),
		rateLimitedTotal: collector.RegisterCounter(
			MetricRateLimitedTotal,
			"Total requests rejected by the rate limiter",
			nil,
		),
	}
}

// RecordAPIRequest records an API request
func (m *APIMetrics) RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// RecordRateLimited increments the rejected-request counter
func (m *APIMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues().Inc()
}
