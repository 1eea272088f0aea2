package security

import (
	"fmt"
	"testing"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	defer rl.Stop()

	if !rl.Allow("1.2.3.4") {
		t.Error("first request denied")
	}
	if !rl.Allow("1.2.3.4") {
		t.Error("second request denied within burst")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("third request allowed beyond burst")
	}

	// Other identifiers have their own bucket.
	if !rl.Allow("5.6.7.8") {
		t.Error("request from a fresh IP denied")
	}
}

func TestRateLimiter_ZeroRateDisables(t *testing.T) {
	rl := NewRateLimiter(0, 0, nil)
	defer rl.Stop()

	for range 100 {
		if !rl.Allow("1.2.3.4") {
			t.Fatal("request denied with limiting disabled")
		}
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Stop()
	rl.maxEntries = 10

	for i := range 20 {
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10 {
		t.Errorf("limiter map has %d entries, want at most 10", len(rl.limiters))
	}
}

func TestRateLimiter_StopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop()
}
