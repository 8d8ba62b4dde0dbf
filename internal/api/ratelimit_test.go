package api

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestRateLimiterBurstCutoff(t *testing.T) {
	rl := &RateLimiter{
		windows:  make(map[string]*rateLimitWindow),
		maxPerMi: 2,
		burst:    3,
	}

	for i := 0; i < 2; i++ {
		if !rl.Allow("client") {
			t.Fatalf("request %d refused below the limit", i+1)
		}
	}
	// Third request is over the per-minute limit.
	if rl.Allow("client") {
		t.Error("request over the per-minute limit accepted")
	}
	if rl.Allow("client") {
		t.Error("request over the burst size accepted")
	}

	// Other clients are unaffected.
	if !rl.Allow("other") {
		t.Error("independent key refused")
	}
}

func TestRateLimiterConcurrentAllow(t *testing.T) {
	rl := &RateLimiter{
		windows:  make(map[string]*rateLimitWindow),
		maxPerMi: 50,
		burst:    50,
	}

	const attempts = 100
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("client") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed %d of %d requests, want exactly the burst size", got, attempts)
	}
}
