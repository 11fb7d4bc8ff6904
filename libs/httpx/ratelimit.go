package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of counting one request against a fixed window.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is how long until the current window ends.
	Reset time.Duration
}

// Limiter counts a request for key. Implementations use a fixed window per key.
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
}

// RateLimitOptions tune RateLimit. The zero value keys by client address and fails closed.
type RateLimitOptions struct {
	Logger   *slog.Logger
	FailOpen bool
	// Key derives the bucket for a request; defaults to ClientKey.
	Key func(*http.Request) string
}

// RateLimit enforces l on every request and reports the window through X-RateLimit-* headers.
// Rejected requests get 429 with Retry-After.
func RateLimit(l Limiter, opts RateLimitOptions) Middleware {
	key := opts.Key
	if key == nil {
		key = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Take(r.Context(), key(r))
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.Warn("rate limiter error", "err", err, "request_id", RequestIDFromContext(r.Context()))
				}
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.Reset)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// RateLimiter is an in-process Limiter for single-instance deployments.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: map[string]*bucket{},
	}
}

// Middleware is RateLimit with default options.
func (rl *RateLimiter) Middleware() Middleware {
	return RateLimit(rl, RateLimitOptions{})
}

func (rl *RateLimiter) Take(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)
	b := rl.buckets[key]
	if b == nil || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(rl.window)}
		rl.buckets[key] = b
	}
	d := Decision{Limit: rl.limit, Reset: b.resetAt.Sub(now)}
	if b.count >= rl.limit {
		return d, nil
	}
	b.count++
	d.Allowed = true
	d.Remaining = rl.limit - b.count
	return d, nil
}

// sweep drops expired buckets at most once per window so idle clients do not accumulate.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Before(rl.nextSweep) {
		return
	}
	for k, b := range rl.buckets {
		if !now.Before(b.resetAt) {
			delete(rl.buckets, k)
		}
	}
	rl.nextSweep = now.Add(rl.window)
}

// ClientKey identifies the caller by the first X-Forwarded-For hop, falling back to the peer
// address.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
