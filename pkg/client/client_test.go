package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/kvdb/kvdb/internal/api/http"
	"github.com/kvdb/kvdb/internal/keystore"
	"github.com/kvdb/kvdb/internal/ratelimit"
	"github.com/kvdb/kvdb/internal/test"
)

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keys, err := keystore.NewAccessor(test.SQLiteTable(t), keystore.Limits{MaxKeyLength: 32, MaxValueLength: 128})
	require.NoError(t, err)

	server := httptest.NewServer(httpapi.NewRouter(httpapi.Dependencies{Keys: keys, Limiter: limiter}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func asError(t *testing.T, err error) *Error {
	t.Helper()
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	return apiErr
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("http://localhost:3005/")
	assert.NoError(t, err)

	_, err = NewClient("localhost:3005")
	assert.Error(t, err)

	_, err = NewClient("ftp://localhost")
	assert.Error(t, err)
}

func TestClient_Lifecycle(t *testing.T) {
	c := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, c.HealthCheck(ctx))
	ready, err := c.ReadinessCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	key, err := c.Create(ctx, "hello", WithName("greeting"))
	require.NoError(t, err)
	assert.Equal(t, "greeting", key.Name)
	assert.False(t, key.ReadOnly)
	assert.False(t, key.CreatedAt.IsZero())

	value, err := c.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", value)

	require.NoError(t, c.Update(ctx, "greeting", "bye"))
	value, err = c.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "bye", value)

	stat, err := c.Stat(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, key.CreatedAt.Equal(stat.CreatedAt))

	exists, err := c.Exists(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "greeting"))
	assert.True(t, asError(t, c.Delete(ctx, "greeting")).IsNotFound())

	exists, err = c.Exists(ctx, "greeting")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_GeneratedName(t *testing.T) {
	c := newTestServer(t, nil)

	key, err := c.Create(context.Background(), "v")
	require.NoError(t, err)
	assert.Len(t, key.Name, 32)
}

func TestClient_Errors(t *testing.T) {
	c := newTestServer(t, nil)
	ctx := context.Background()

	_, err := c.Create(ctx, "v", WithName("frozen"), WithReadOnly())
	require.NoError(t, err)

	_, err = c.Create(ctx, "v", WithName("frozen"))
	assert.True(t, asError(t, err).IsConflict())

	err = c.Update(ctx, "frozen", "x")
	assert.True(t, asError(t, err).IsReadOnly())

	_, err = c.Get(ctx, "missing")
	apiErr := asError(t, err)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)

	_, err = c.Create(ctx, strings.Repeat("v", 129))
	assert.True(t, asError(t, err).IsTooLarge())

	_, err = c.Stat(ctx, "missing")
	assert.True(t, asError(t, err).IsNotFound())
}

func TestClient_RateLimited(t *testing.T) {
	clock := test.NewClock()
	c := newTestServer(t, ratelimit.New(1, 1, ratelimit.WithClock(clock.Now)))
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	require.True(t, asError(t, err).IsNotFound())

	_, err = c.Get(ctx, "a")
	apiErr := asError(t, err)
	assert.True(t, apiErr.IsRateLimited())
	assert.Equal(t, time.Second, apiErr.RetryAfter)

	err = c.HealthCheck(ctx)
	assert.True(t, asError(t, err).IsRateLimited(), "health checks share the bucket")

	clock.Advance(time.Second)
	require.NoError(t, c.HealthCheck(ctx))
}

func TestClient_TransportError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", WithTimeout(time.Second))
	require.NoError(t, err)

	err = c.HealthCheck(context.Background())
	apiErr := asError(t, err)
	assert.Zero(t, apiErr.StatusCode)
	assert.Error(t, apiErr.Unwrap())
}
