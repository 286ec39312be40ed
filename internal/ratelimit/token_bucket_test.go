package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetalk-backend/internal/ratelimit"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestTokenBucket_CapacityAndRefill(t *testing.T) {
	ctx := context.Background()
	client, _ := newClient(t)
	now := time.Unix(1_700_000_000, 0)
	bucket := ratelimit.NewTokenBucket(client, 2, 1, time.Minute).WithClock(func() time.Time { return now })

	d, err := bucket.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, err = bucket.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = bucket.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)

	other, err := bucket.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(1500 * time.Millisecond)
	d, err = bucket.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMiddleware_RejectsWith429(t *testing.T) {
	client, _ := newClient(t)
	now := time.Unix(1_700_000_000, 0)
	bucket := ratelimit.NewTokenBucket(client, 1, 0.5, time.Minute).WithClock(func() time.Time { return now })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ratelimit.Middleware(bucket, zerolog.Nop()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"retryable":true`)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	client, mr := newClient(t)
	bucket := ratelimit.NewTokenBucket(client, 1, 1, time.Minute)
	mr.Close()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ratelimit.Middleware(bucket, zerolog.Nop()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func forwardedRequest(forwardedFor string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4321"
	req.Header.Set("X-Forwarded-For", forwardedFor)
	return req
}

func TestMiddleware_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	client, _ := newClient(t)
	bucket := ratelimit.NewTokenBucket(client, 1, 0.001, time.Minute)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	require.NoError(t, router.SetTrustedProxies(nil))
	router.Use(ratelimit.Middleware(bucket, zerolog.Nop()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, forwardedRequest("203.0.113.1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, forwardedRequest("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestMiddleware_HonoursForwardedForFromTrustedProxy(t *testing.T) {
	client, _ := newClient(t)
	bucket := ratelimit.NewTokenBucket(client, 1, 0.001, time.Minute)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	require.NoError(t, router.SetTrustedProxies([]string{"192.0.2.0/24"}))
	router.Use(ratelimit.Middleware(bucket, zerolog.Nop()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, forwardedRequest(ip))
		assert.Equal(t, http.StatusOK, w.Code, ip)
	}
}
