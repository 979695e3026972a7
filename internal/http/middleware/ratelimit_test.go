package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	assert.Equal(t, 2, rl.Evict(now.Add(time.Minute)))
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/reports", nil)
		req.RemoteAddr = "192.0.2.7:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"__is_success":0,"success":false,"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimitDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RateLimit(0, 1, nil)(next)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reports", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
