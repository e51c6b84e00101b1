package worker

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	lastUpdate time.Time
	rate       float64
	burst      int
	tokens     float64
	requests   int64
	rejected   int64
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
// rate is the number of requests per second to allow.
// burst is the maximum burst of requests to allow.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow checks if a request should be allowed.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.requests++

	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate).Seconds()
	rl.tokens += elapsed * rl.rate
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}
	rl.lastUpdate = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	rl.rejected++
	return false
}

// RetryAfter returns how long until the next token is available.
func (rl *RateLimiter) RetryAfter() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.tokens >= 1 || rl.rate <= 0 {
		return 0
	}
	return time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
}

// KeyedRateLimiter keeps one token bucket per key, e.g. per user.
type KeyedRateLimiter struct {
	lastCleanup     time.Time
	buckets         map[string]*RateLimiter
	rate            float64
	burst           int
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	mu              sync.Mutex
}

// NewKeyedRateLimiter creates a limiter allowing rate requests per second per key.
func NewKeyedRateLimiter(rate float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		rate:            rate,
		burst:           burst,
		buckets:         make(map[string]*RateLimiter),
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     30 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// limiter returns the bucket for key, creating it on first use.
func (kl *KeyedRateLimiter) limiter(key string) *RateLimiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if time.Since(kl.lastCleanup) > kl.cleanupInterval {
		kl.cleanupLocked()
	}

	limiter, exists := kl.buckets[key]
	if !exists {
		limiter = NewRateLimiter(kl.rate, kl.burst)
		kl.buckets[key] = limiter
	}
	return limiter
}

// cleanupLocked removes idle buckets. Must be called with kl.mu held.
func (kl *KeyedRateLimiter) cleanupLocked() {
	now := time.Now()
	for key, limiter := range kl.buckets {
		limiter.mu.Lock()
		idle := now.Sub(limiter.lastUpdate) > kl.maxIdleTime
		limiter.mu.Unlock()
		if idle {
			delete(kl.buckets, key)
		}
	}
	kl.lastCleanup = now
}

// Allow checks if a request for key should be allowed.
func (kl *KeyedRateLimiter) Allow(key string) bool {
	return kl.limiter(key).Allow()
}

// Stats returns aggregate statistics.
func (kl *KeyedRateLimiter) Stats() map[string]any {
	kl.mu.Lock()
	limiters := make([]*RateLimiter, 0, len(kl.buckets))
	for _, limiter := range kl.buckets {
		limiters = append(limiters, limiter)
	}
	kl.mu.Unlock()

	var totalRequests, totalRejected int64
	for _, limiter := range limiters {
		limiter.mu.Lock()
		totalRequests += limiter.requests
		totalRejected += limiter.rejected
		limiter.mu.Unlock()
	}

	return map[string]any{
		"rate":           kl.rate,
		"burst":          kl.burst,
		"active_keys":    len(limiters),
		"total_requests": totalRequests,
		"total_rejected": totalRejected,
	}
}

// PerUserRateLimitMiddleware limits requests per {userID} path parameter.
func PerUserRateLimitMiddleware(limiter *KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := limiter.limiter(chi.URLParam(r, "userID"))
			if !bucket.Allow() {
				seconds := int(bucket.RetryAfter().Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
