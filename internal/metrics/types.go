package metrics

// Metric name constants following Prometheus naming conventions
// Format: kvdb_{component}_{metric}_{unit}

// Key store metrics
const (
	MetricOperationsTotal   = "kvdb_operations_total"
	MetricOperationDuration = "kvdb_operation_duration_seconds"
	MetricValueBytes        = "kvdb_value_bytes"
)

// Sweeper metrics
const (
	MetricSweepsTotal      = "kvdb_sweeps_total"
	MetricSweptKeysTotal   = "kvdb_swept_keys_total"
	MetricSweepDuration    = "kvdb_sweep_duration_seconds"
	MetricLastSweepSuccess = "kvdb_last_sweep_success_timestamp_seconds"
)

// API metrics
const (
	MetricAPIRequestsTotal   = "kvdb_api_requests_total"
	MetricAPIRequestDuration = "kvdb_api_request_duration_seconds"
	MetricRateLimitedTotal   = "kvdb_rate_limited_total"
)

// Label name constants
const (
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelMethod    = "method"
	LabelEndpoint  = "endpoint"
)

// Status label values
const (
	StatusOK    = "ok"
	StatusError = "error"
)
