package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, "test:rate_limit:"), mr
}

func TestRedisRateLimiter_Consume(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	count, retryAfter, err := limiter.Consume(ctx, "http", "user:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 60, retryAfter)
	assert.True(t, mr.Exists("test:rate_limit:http:user:1"))

	count, _, err = limiter.Consume(ctx, "http", "user:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mr.FastForward(time.Minute)
	count, _, err = limiter.Consume(ctx, "http", "user:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "window resets")
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	handler := RateLimitMiddleware(limiter, 2, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(userID int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/banking/directories", nil)
		req = req.WithContext(WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call(1).Code)
	second := call(1)
	assert.Equal(t, http.StatusNoContent, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	third := call(1)
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "60", third.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call(2).Code, "limits are per user")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	handler := RateLimitMiddleware(limiter, 1, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRateLimitMiddleware_DisabledWithoutRedis(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RateLimitMiddleware(NewRedisRateLimiter(nil, ""), 1, zerolog.Nop())(next)
	assert.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
