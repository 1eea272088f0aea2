package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxLimiterEntries = 10000
	limiterIdleTTL           = 10 * time.Minute
	limiterCleanupInterval   = time.Minute
)

// limiterEntry tracks a rate limiter and its last access time.
type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier (typically per-IP) rate limiting using
// token buckets, with LRU eviction to prevent unbounded memory growth.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*list.Element // identifier -> list element
	lruList    *list.List               // LRU list of *limiterEntry
	rate       int
	burst      int
	maxEntries int
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter creates a rate limiter with automatic cleanup of idle
// entries. A nil logger falls back to slog.Default().
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		limiters:   make(map[string]*list.Element),
		lruList:    list.New(),
		rate:       requestsPerSecond,
		burst:      burst,
		maxEntries: defaultMaxLimiterEntries,
		logger:     logger,
		stop:       make(chan struct{}),
	}

	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from identifier may proceed now.
func (rl *RateLimiter) Allow(identifier string) bool {
	if rl.rate <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	elem, ok := rl.limiters[identifier]
	if !ok {
		if rl.lruList.Len() >= rl.maxEntries {
			rl.evictOldest()
		}
		entry := &limiterEntry{
			identifier: identifier,
			limiter:    rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
			lastAccess: time.Now(),
		}
		elem = rl.lruList.PushFront(entry)
		rl.limiters[identifier] = elem
		return entry.limiter.Allow()
	}

	entry := elem.Value.(*limiterEntry)
	entry.lastAccess = time.Now()
	rl.lruList.MoveToFront(elem)
	return entry.limiter.Allow()
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// evictOldest removes the least recently used entry. Caller holds rl.mu.
func (rl *RateLimiter) evictOldest() {
	oldest := rl.lruList.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*limiterEntry)
	rl.lruList.Remove(oldest)
	delete(rl.limiters, entry.identifier)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanupIdle()
		}
	}
}

// cleanupIdle removes entries not seen within limiterIdleTTL. The LRU list is
// ordered by access time, so scanning from the back stops at the first live
// entry.
func (rl *RateLimiter) cleanupIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-limiterIdleTTL)
	removed := 0
	for elem := rl.lruList.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if entry.lastAccess.After(cutoff) {
			break
		}
		prev := elem.Prev()
		rl.lruList.Remove(elem)
		delete(rl.limiters, entry.identifier)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.logger.Debug("Cleaned up idle rate limiters", "removed", removed, "remaining", rl.lruList.Len())
	}
}
