package tracing

// Span attribute keys following OpenTelemetry semantic conventions
const (
	// Key store attributes
	AttrKey       = "kvdb.key"
	AttrReadOnly  = "kvdb.read_only"
	AttrValueSize = "kvdb.value.size"

	// Operation attributes
	AttrOperation = "kvdb.operation"
	AttrStatus    = "kvdb.status"

	// Sweeper attributes
	AttrSweepCutoff  = "kvdb.sweep.cutoff"
	AttrSweepDeleted = "kvdb.sweep.deleted"

	// HTTP attributes (OpenTelemetry semantic conventions)
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPUserAgent  = "http.user_agent"
	AttrHTTPRemoteAddr = "http.remote_addr"
)

// Tracer names used by instrumented packages
const (
	TracerHTTP     = "kvdb.http"
	TracerKeyStore = "kvdb.keystore"
	TracerSweeper  = "kvdb.sweeper"
)
