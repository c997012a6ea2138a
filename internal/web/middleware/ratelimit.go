package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter decides whether a client may run another request
type Limiter interface {
	Allow(key string) Decision
}

// Decision is the outcome of a Limiter check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the next token, zero when Allowed
	RetryAfter time.Duration
}

// TokenBucket is an in-memory per-key token bucket. Each key holds up to
// capacity tokens and regains capacity tokens per period.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	perToken time.Duration
	now      func() time.Time
	idle     time.Duration
	swept    time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewTokenBucket allows capacity requests per period for every key
func NewTokenBucket(capacity int, period time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if period <= 0 {
		period = time.Minute
	}
	return &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: float64(capacity),
		perToken: period / time.Duration(capacity),
		now:      time.Now,
		idle:     2 * period,
	}
}

// Allow takes one token from the bucket of key
func (tb *TokenBucket) Allow(key string) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.sweep(now)

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, seen: now}
		tb.buckets[key] = b
	}
	if elapsed := now.Sub(b.seen); elapsed > 0 {
		b.tokens = math.Min(tb.capacity, b.tokens+float64(elapsed)/float64(tb.perToken))
	}
	b.seen = now

	d := Decision{Limit: int(tb.capacity)}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
		d.Remaining = int(b.tokens)
		return d
	}
	d.RetryAfter = time.Duration((1 - b.tokens) * float64(tb.perToken))
	return d
}

// sweep drops buckets idle long enough to be full again. Callers hold mu.
func (tb *TokenBucket) sweep(now time.Time) {
	if now.Sub(tb.swept) < tb.idle {
		return
	}
	for key, b := range tb.buckets {
		if now.Sub(b.seen) > tb.idle {
			delete(tb.buckets, key)
		}
	}
	tb.swept = now
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// ClientIP keys requests by the host part of RemoteAddr
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the budget of their key with 429. A nil
// limiter disables the middleware.
func RateLimit(limiter Limiter, key func(*http.Request) string) Middleware {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Allow(key(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			seconds := int(math.Ceil(d.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			Logger(r.Context()).Debug("rate limited")
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
		})
	}
}
