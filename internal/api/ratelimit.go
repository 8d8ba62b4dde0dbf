package api

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiter enforces per-client rate limits on API calls using a sliding
// window keyed by remote address. Expired windows are garbage-collected
// periodically.
type RateLimiter struct {
	mu       sync.RWMutex
	windows  map[string]*rateLimitWindow
	maxPerMi int
	burst    int
}

// count is atomic so the hot path can increment under the map's read lock.
type rateLimitWindow struct {
	count       atomic.Int64
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter. Zero values pick the defaults
// (120/minute with a 2x burst).
func NewRateLimiter(maxPerMinute, burst int) *RateLimiter {
	if maxPerMinute == 0 {
		maxPerMinute = 120
	}
	if burst == 0 {
		burst = maxPerMinute * 2
	}
	rl := &RateLimiter{
		windows:  make(map[string]*rateLimitWindow),
		maxPerMi: maxPerMinute,
		burst:    burst,
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether a request from the given key is within limits.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.RLock()
	window, exists := rl.windows[key]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		count := window.count.Add(1)
		rl.mu.RUnlock()

		if count > int64(rl.burst) {
			log.Printf("[RateLimit] Exceeded (burst): key=%s count=%d", key, count)
			return false
		}
		if count > int64(rl.maxPerMi) {
			log.Printf("[RateLimit] Exceeded: key=%s count=%d limit=%d", key, count, rl.maxPerMi)
			return false
		}
		return true
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	window, exists = rl.windows[key]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		return window.count.Add(1) <= int64(rl.burst)
	}
	window = &rateLimitWindow{windowStart: now}
	window.count.Store(1)
	rl.windows[key] = window
	return true
}

// Middleware returns an HTTP middleware enforcing the limit per remote host.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.RemoteAddr) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","retry_after_seconds":60}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, window := range rl.windows {
			if now.Sub(window.windowStart) > 2*time.Minute {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}
