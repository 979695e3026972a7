package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewRateLimiter allows rate requests/sec per client with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastTime: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastTime).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Evict drops buckets idle since before cutoff and returns how many were removed.
func (rl *RateLimiter) Evict(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, b := range rl.buckets {
		if b.lastTime.Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Middleware rejects requests over the limit with a 429 JSON envelope.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit builds a limiter whose idle buckets are swept every five minutes
// until done is closed. rate <= 0 disables limiting.
func RateLimit(rate float64, burst int, done <-chan struct{}) func(http.Handler) http.Handler {
	if rate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := NewRateLimiter(rate, burst)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				limiter.Evict(time.Now().Add(-10 * time.Minute))
			}
		}
	}()
	return limiter.Middleware
}

// clientKey prefers X-Real-Ip, which chi's RealIP middleware populates.
func clientKey(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
