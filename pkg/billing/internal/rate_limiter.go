package internal

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultWebhookLimit is the number of webhook deliveries accepted per client
// address and window.
const DefaultWebhookLimit = 100

// RateLimiter is a per-client fixed-window limiter for webhook endpoints.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	limit       int
	period      time.Duration
	now         func() time.Time
	calls       int
	sweepEvery  int // sweep expired windows every N calls
	sweepAtSize int // or whenever this many clients are tracked
}

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter admitting limit requests per period and client.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:     make(map[string]*window),
		limit:       limit,
		period:      period,
		now:         time.Now,
		sweepEvery:  100,
		sweepAtSize: 200,
	}
}

// allow reports whether the client may proceed and, if not, how long until
// its window resets.
func (rl *RateLimiter) allow(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	rl.calls++
	if rl.calls >= rl.sweepEvery || len(rl.windows) > rl.sweepAtSize {
		rl.sweep(now)
		rl.calls = 0
	}

	w, ok := rl.windows[client]
	if !ok || !now.Before(w.resetAt) {
		rl.windows[client] = &window{count: 1, resetAt: now.Add(rl.period)}
		return true, 0
	}
	if w.count >= rl.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

func (rl *RateLimiter) sweep(now time.Time) {
	for client, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, client)
		}
	}
}

// Tracked returns the number of clients with an open window.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.allow(ClientIP(r))
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many webhook deliveries")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are not
// read here: they are client controlled, and a proxy that is trusted should
// rewrite RemoteAddr before this point (chi's middleware.RealIP does).
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
