// Package ratelimit provides a keyed token-bucket rate limiter for inbound
// requests, keyed by client address.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter manages per-key rate limiting.
// Each unique key gets its own independent limiter; keys idle for longer
// than idleTTL are evicted so one-off clients do not accumulate.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a keyed limiter allowing perMinute requests per key with the
// given burst, and starts the eviction loop.
func New(perMinute float64, burst int) *KeyedRateLimiter {
	krl := newLimiter(perMinute, burst)
	go krl.cleanup(krl.idleTTL)
	return krl
}

func newLimiter(perMinute float64, burst int) *KeyedRateLimiter {
	limit := rate.Limit(perMinute / 60)

	// A key is idle once its bucket has had time to refill completely.
	idleTTL := 10 * time.Minute
	if perMinute > 0 {
		refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
		idleTTL = max(refill, time.Minute)
	}

	return &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    limit,
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Allow reports whether a request for key may proceed now.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	now := krl.now()
	e, ok := krl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RetryAfter is how long, in whole seconds, a rejected client should wait
// for one token.
func (krl *KeyedRateLimiter) RetryAfter() time.Duration {
	if krl.limit <= 0 {
		return time.Minute
	}
	secs := math.Ceil(1/float64(krl.limit) - 1e-9)
	return time.Duration(secs) * time.Second
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

// Stop shuts down the eviction loop.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

// Shutdown implements do.Shutdowner.
func (krl *KeyedRateLimiter) Shutdown() error {
	krl.Stop()
	return nil
}

func (krl *KeyedRateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case <-ticker.C:
			krl.evictIdle()
		}
	}
}

// evictIdle drops keys not seen within idleTTL.
func (krl *KeyedRateLimiter) evictIdle() {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	cutoff := krl.now().Add(-krl.idleTTL)
	for key, e := range krl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(krl.limiters, key)
		}
	}
}
