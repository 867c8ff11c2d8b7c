package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter decides whether a keyed request fits in its window.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// evictEvery spaces out the scans for expired windows done inside Allow.
const evictEvery = time.Minute

// memoryRateLimiter counts hits per key in fixed windows. Expired windows are
// evicted lazily, so there is no background goroutine to stop.
type memoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*rateDecision
	nextEvict time.Time
	now       func() time.Time
}

// NewMemoryRateLimiter returns a fixed-window limiter kept in process memory.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryRateLimiter(time.Now)
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{windows: make(map[string]*rateDecision), now: now}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.evictExpired(now)

	w, ok := rl.windows[key]
	if !ok || now.After(w.windowEnd) {
		w = &rateDecision{windowEnd: now.Add(window)}
		rl.windows[key] = w
	}
	if w.count >= limit {
		return rateDecision{count: w.count, windowEnd: w.windowEnd}
	}
	w.count++
	return rateDecision{allowed: true, count: w.count, windowEnd: w.windowEnd}
}

// evictExpired requires rl.mu.
func (rl *memoryRateLimiter) evictExpired(now time.Time) {
	if now.Before(rl.nextEvict) {
		return
	}
	rl.nextEvict = now.Add(evictEvery)
	for key, w := range rl.windows {
		if now.After(w.windowEnd) {
			delete(rl.windows, key)
		}
	}
}

// Close drops all counters.
func (rl *memoryRateLimiter) Close() {
	rl.mu.Lock()
	rl.windows = make(map[string]*rateDecision)
	rl.mu.Unlock()
}

// withRateLimit returns chi middleware enforcing limit requests per window per key.
func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if limit <= 0 || r.limiter == nil {
				next.ServeHTTP(w, req)
				return
			}
			key := keyFn(req)
			if key == "" {
				key = rateLimitKeyIP(req)
			}
			decision := r.limiter.Allow(key, limit, window)
			applyRateHeaders(w, limit, decision)
			if !decision.allowed {
				label := route
				if label == "" {
					label = req.URL.Path
				}
				r.recordRateLimitHit(label, rateMetricKey(key))
				writeError(w, http.StatusTooManyRequests, msgRateLimited)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func rateLimitKeyIP(req *http.Request) string {
	host := clientIP(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func rateMetricKey(key string) string {
	if key == "" {
		return "unknown"
	}
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}

func applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}
