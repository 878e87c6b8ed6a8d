package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvdb/kvdb/internal/keystore"
	"github.com/kvdb/kvdb/internal/metrics"
	"github.com/kvdb/kvdb/internal/ratelimit"
	"github.com/kvdb/kvdb/internal/test"
)

func TestMetricsIntegration_Requests(t *testing.T) {
	collector := metrics.NewCollector()
	apiMetrics := metrics.NewAPIMetrics(collector)
	keys, err := keystore.NewAccessor(test.SQLiteTable(t), testLimits,
		keystore.WithMetrics(metrics.NewKeyStoreMetrics(collector)))
	require.NoError(t, err)

	router := NewRouter(Dependencies{Keys: keys, Metrics: apiMetrics})

	for _, target := range []string{"/key?name=a", "/key?name=b", "/health", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	count, err := testutil.GatherAndCount(collector.GetRegistry(), metrics.MetricAPIRequestsTotal)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "series per route and status")

	count, err = testutil.GatherAndCount(collector.GetRegistry(), metrics.MetricOperationsTotal)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "both reads share the not_found series")
}

func TestMetricsIntegration_RateLimited(t *testing.T) {
	collector := metrics.NewCollector()
	apiMetrics := metrics.NewAPIMetrics(collector)
	router := NewRouter(Dependencies{
		Keys:    &stubKeys{},
		Metrics: apiMetrics,
		Limiter: ratelimit.New(1, 1, ratelimit.WithClock(test.NewClock().Now)),
	})

	rejected := 0
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/key?name=k", nil))
		if w.Code == http.StatusTooManyRequests {
			rejected++
		}
	}
	assert.Equal(t, 2, rejected)

	count, err := testutil.GatherAndCount(collector.GetRegistry(), metrics.MetricRateLimitedTotal)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsIntegration_NoMetricsWhenDisabled(t *testing.T) {
	router := NewRouter(Dependencies{Keys: &stubKeys{}})

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/key?name=k", nil))
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
