package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperMetrics tracks expiration sweeps
type SweeperMetrics struct {
	sweepsTotal      *prometheus.CounterVec
	sweptKeysTotal   *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	lastSweepSuccess *prometheus.GaugeVec
}

// NewSweeperMetrics registers sweeper metrics with the collector
func NewSweeperMetrics(collector *Collector) *SweeperMetrics {
	return &SweeperMetrics{
		sweepsTotal: collector.RegisterCounter(
			MetricSweepsTotal,
			"Total expiration sweeps by outcome",
			[]string{LabelStatus},
		),
		sweptKeysTotal: collector.RegisterCounter(
			MetricSweptKeysTotal,
			"Total keys deleted for inactivity",
			nil,
		),
		sweepDuration: collector.RegisterHistogram(
			MetricSweepDuration,
			"Expiration sweep latency in seconds",
			nil,
			nil,
		),
		lastSweepSuccess: collector.RegisterGauge(
			MetricLastSweepSuccess,
			"Unix time of the last successful sweep",
			nil,
		),
	}
}

// RecordSweep records one sweep
func (m *SweeperMetrics) RecordSweep(deleted int64, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues().Observe(duration.Seconds())
	if err != nil {
		m.sweepsTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.sweepsTotal.WithLabelValues(StatusOK).Inc()
	m.sweptKeysTotal.WithLabelValues().Add(float64(deleted))
	m.lastSweepSuccess.WithLabelValues().SetToCurrentTime()
}
