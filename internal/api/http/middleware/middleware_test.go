package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kvdb/kvdb/internal/ratelimit"
	"github.com/kvdb/kvdb/internal/tracing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(handlers...)
	engine.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.GET("/fail", func(c *gin.Context) { c.String(http.StatusInternalServerError, "fail") })
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })
	return engine
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	engine := newEngine(Recovery(zerolog.New(&buf)))

	w := get(engine, "/panic")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error","success":false}`, w.Body.String())
	assert.Contains(t, buf.String(), "boom")
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	engine := newEngine(Logging(zerolog.New(&buf)))

	get(engine, "/ok")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "/ok", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])

	buf.Reset()
	get(engine, "/fail")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(2, 2, ratelimit.WithClock(func() time.Time { return now }))
	engine := newEngine(RateLimit(limiter, nil, zerolog.Nop()))

	assert.Equal(t, http.StatusOK, get(engine, "/ok").Code)
	assert.Equal(t, http.StatusOK, get(engine, "/ok").Code)

	w := get(engine, "/ok")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"), "sub-second waits round up")
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestRateLimit_NilLimiterAdmitsAll(t *testing.T) {
	engine := newEngine(RateLimit(nil, nil, zerolog.Nop()))

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, get(engine, "/ok").Code)
	}
}

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	engine := newEngine(Tracing())
	get(engine, "/ok")
	get(engine, "/fail")
	get(engine, "/missing")

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "HTTP GET /ok", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, "HTTP GET /fail", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "HTTP GET unmatched", spans[2].Name)

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "/ok", attrs[tracing.AttrHTTPRoute])
	assert.Equal(t, "192.0.2.1", attrs[tracing.AttrHTTPRemoteAddr])
}

func TestCORS(t *testing.T) {
	assert.Nil(t, CORS(nil))

	engine := newEngine(CORS([]string{"*"}))
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
