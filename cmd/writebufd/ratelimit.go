package main

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter keeps one token bucket per client IP so a single noisy
// scraper can't starve the health/metrics surface for everyone else.
// Stale entries are dropped by a background sweep.
type ipRateLimiter struct {
	mu      sync.Mutex
	perIP   map[string]*ipLimiterEntry
	limit   rate.Limit
	burst   int
	maxIdle time.Duration
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPRateLimiter returns a limiter allowing limit requests per second
// with the given burst, per IP. The cleanup goroutine runs for the life
// of the process.
func newIPRateLimiter(limit rate.Limit, burst int) *ipRateLimiter {
	rl := &ipRateLimiter{
		perIP:   make(map[string]*ipLimiterEntry),
		limit:   limit,
		burst:   burst,
		maxIdle: 5 * time.Minute,
	}
	go rl.sweep()
	return rl
}

// allow reports whether a request from ip may proceed now, and the wait
// until the next token when it may not.
func (rl *ipRateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.perIP[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.perIP[ip] = entry
	}
	entry.lastSeen = time.Now()

	res := entry.limiter.Reserve()
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

func (rl *ipRateLimiter) sweep() {
	ticker := time.NewTicker(rl.maxIdle)
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.maxIdle)
		for ip, entry := range rl.perIP {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.perIP, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// rateLimitMiddleware rejects over-limit requests with a plain-text 429
// and a Retry-After header, matching the surface's text responses.
func rateLimitMiddleware(rl *ipRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := rl.allow(clientIP(r))
			if !ok {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the peer IP from RemoteAddr. This surface binds for
// operators and scrapers, not proxied end users, so forwarding headers
// are deliberately ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
