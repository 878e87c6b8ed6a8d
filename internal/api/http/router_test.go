package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvdb/kvdb/internal/api/http/handlers"
	"github.com/kvdb/kvdb/internal/keystore"
	"github.com/kvdb/kvdb/internal/ratelimit"
	"github.com/kvdb/kvdb/internal/test"
)

var testLimits = keystore.Limits{MaxKeyLength: 16, MaxValueLength: 64}

type harness struct {
	router http.Handler
	clock  *test.Clock
}

func newHarness(t *testing.T, mutate ...func(*Dependencies)) *harness {
	t.Helper()
	clock := test.NewClock()
	table := test.SQLiteTable(t)
	keys, err := keystore.NewAccessor(table, testLimits, keystore.WithClock(clock.Now))
	require.NoError(t, err)

	deps := Dependencies{Keys: keys}
	for _, m := range mutate {
		m(&deps)
	}
	return &harness{
		router: NewRouter(deps),
		clock:  clock,
	}
}

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestKeyLifecycle(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/key", `{"name":"greeting","value":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "greeting", created["name"])
	assert.Equal(t, false, created["read_only"])
	assert.Equal(t, true, created["success"])
	assert.NotEmpty(t, created["created_at"])
	assert.NotEmpty(t, created["last_active_at"])

	w = h.do(t, http.MethodGet, "/key?name=greeting", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":"hello","success":true}`, w.Body.String())

	w = h.do(t, http.MethodPatch, "/key", `{"name":"greeting","value":"bye"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = h.do(t, http.MethodGet, "/key?name=greeting", "")
	assert.JSONEq(t, `{"value":"bye","success":true}`, w.Body.String())

	w = h.do(t, http.MethodDelete, "/key?name=greeting", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = h.do(t, http.MethodDelete, "/key?name=greeting", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = h.do(t, http.MethodGet, "/key?name=greeting", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateGeneratesName(t *testing.T) {
	h := newHarness(t)

	for _, body := range []string{"", "{}", `{"value":"v"}`} {
		w := h.do(t, http.MethodPost, "/key", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		name, _ := decode(t, w)["name"].(string)
		assert.Len(t, name, testLimits.MaxKeyLength, "generated names are cut to the key limit")
	}
}

func TestCreateEmptyValue(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/key", `{"name":"blank"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/key?name=blank", "")
	assert.JSONEq(t, `{"value":"","success":true}`, w.Body.String())
}

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/key", `{"name":"taken","value":"v"}`)
	h.do(t, http.MethodPost, "/key", `{"name":"frozen","value":"v","read_only":true}`)

	maxKey := strings.Repeat("k", testLimits.MaxKeyLength)
	longKey := maxKey + "k"
	longValue := strings.Repeat("v", testLimits.MaxValueLength+1)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"key at limit", http.MethodPost, "/key", `{"name":"` + maxKey + `"}`, http.StatusOK},
		{"key over limit", http.MethodPost, "/key", `{"name":"` + longKey + `"}`, http.StatusRequestEntityTooLarge},
		{"read key over limit", http.MethodGet, "/key?name=" + longKey, "", http.StatusRequestEntityTooLarge},
		{"value over limit", http.MethodPost, "/key", `{"name":"big","value":"` + longValue + `"}`, http.StatusRequestEntityTooLarge},
		{"update value over limit", http.MethodPatch, "/key", `{"name":"taken","value":"` + longValue + `"}`, http.StatusRequestEntityTooLarge},
		{"duplicate", http.MethodPost, "/key", `{"name":"taken"}`, http.StatusConflict},
		{"read-only update", http.MethodPatch, "/key", `{"name":"frozen","value":"x"}`, http.StatusForbidden},
		{"update missing", http.MethodPatch, "/key", `{"name":"ghost","value":"x"}`, http.StatusNotFound},
		{"explicit empty name", http.MethodPost, "/key", `{"name":""}`, http.StatusBadRequest},
		{"invalid characters", http.MethodPost, "/key", `{"name":"a b"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/key", `{"nam":"x"}`, http.StatusBadRequest},
		{"wrong type", http.MethodPost, "/key", `{"read_only":"yes"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/key", `{"name":`, http.StatusBadRequest},
		{"update without value", http.MethodPatch, "/key", `{"name":"taken"}`, http.StatusBadRequest},
		{"update without body", http.MethodPatch, "/key", "", http.StatusBadRequest},
		{"get without name", http.MethodGet, "/key", "", http.StatusBadRequest},
		{"delete without name", http.MethodDelete, "/key?name=", "", http.StatusBadRequest},
		{"oversized body", http.MethodPost, "/key", `{"value":"` + strings.Repeat("x", 4096) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				resp := decode(t, w)
				assert.Equal(t, false, resp["success"])
				assert.NotEmpty(t, resp["error"])
			}
		})
	}

	w := h.do(t, http.MethodGet, "/key?name=frozen", "")
	assert.JSONEq(t, `{"value":"v","success":true}`, w.Body.String(), "rejected update leaves the value")
}

func TestStorageFailureHidesCause(t *testing.T) {
	table := test.PebbleTable(t)
	keys, err := keystore.NewAccessor(table, testLimits)
	require.NoError(t, err)
	require.NoError(t, table.Close())
	router := NewRouter(Dependencies{Keys: keys})

	req := httptest.NewRequest(http.MethodGet, "/key?name=k", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal storage error","success":false}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHeadReportsMetadata(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/key", `{"name":"k","value":"v","read_only":true}`)
	h.clock.Advance(time.Minute)

	w := h.do(t, http.MethodHead, "/key?name=k", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(handlers.HeaderReadOnly))
	assert.Equal(t, test.Epoch.Format(time.RFC3339Nano), w.Header().Get(handlers.HeaderCreatedAt))
	assert.Equal(t, test.Epoch.Format(time.RFC3339Nano), w.Header().Get(handlers.HeaderLastActiveAt), "HEAD does not refresh")
	assert.Empty(t, w.Body.String())

	w = h.do(t, http.MethodHead, "/key?name=missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	clock := test.NewClock()
	h := newHarness(t, func(d *Dependencies) {
		d.Limiter = ratelimit.New(5, 10, ratelimit.WithClock(clock.Now))
	})

	for i := 0; i < 10; i++ {
		w := h.do(t, http.MethodGet, "/key?name=missing", "")
		require.Equal(t, http.StatusNotFound, w.Code, "request %d is admitted", i+1)
	}

	w := h.do(t, http.MethodGet, "/key?name=missing", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, false, decode(t, w)["success"])

	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodGet, "/nowhere", "").Code)

	clock.Advance(time.Second)
	admitted := 0
	for i := 0; i < 10; i++ {
		if h.do(t, http.MethodGet, "/key?name=missing", "").Code != http.StatusTooManyRequests {
			admitted++
		}
	}
	assert.GreaterOrEqual(t, admitted, 5)
}

func TestRateLimitCoversHealthProbes(t *testing.T) {
	clock := test.NewClock()
	h := newHarness(t, func(d *Dependencies) {
		d.Limiter = ratelimit.New(1, 2, ratelimit.WithClock(clock.Now))
	})

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/ready", "").Code)

	w := h.do(t, http.MethodGet, "/key?name=missing", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "probes drew from the same bucket")

	clock.Advance(time.Second)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/key?name=missing", "").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.Limiter = ratelimit.New(0, 1)
	})

	for i := 0; i < 50; i++ {
		require.NotEqual(t, http.StatusTooManyRequests, h.do(t, http.MethodGet, "/key?name=k", "").Code)
	}
}

func TestCORS(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.CORSOrigins = []string{"https://app.example.com", "https://*.example.org"}
	})

	get := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		return w
	}

	w := get("https://app.example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get("https://tenant.example.org")
	assert.Equal(t, "https://tenant.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = get("https://evil.example.net")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/key", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	pre := httptest.NewRecorder()
	h.router.ServeHTTP(pre, req)
	assert.Equal(t, http.StatusNoContent, pre.Code)
	assert.Contains(t, pre.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestNoCORSHeadersByDefault(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
