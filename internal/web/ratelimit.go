package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP. Buckets are created on
// first sight and evicted once idle, so the map stays bounded by the set of
// recently active clients.
type RateLimiter struct {
	mu    sync.Mutex
	perIP map[string]*bucket
	limit rate.Limit
	burst int
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		perIP: make(map[string]*bucket),
		limit: r,
		burst: burst,
	}
}

// allow takes a token from the bucket for ip, creating the bucket on first
// sight.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.perIP[ip]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rl.limit, rl.burst)}
		rl.perIP[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.tokens.Allow()
}

// evictStale drops buckets idle longer than staleAfter.
func (rl *RateLimiter) evictStale(staleAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for ip, b := range rl.perIP {
		if b.lastSeen.Before(cutoff) {
			delete(rl.perIP, ip)
		}
	}
}

// StartCleanup evicts stale buckets on a timer until ctx is cancelled. The
// goroutine is tracked on wg; the caller waits on it at shutdown.
func (rl *RateLimiter) StartCleanup(ctx context.Context, wg *sync.WaitGroup, interval, staleAfter time.Duration) {
	wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictStale(staleAfter)
			}
		}
	})
}

// Middleware throttles requests for which limited returns true; everything
// else passes straight through. Throttled requests get a 429 with a JSON
// error body and a Retry-After hint.
func (rl *RateLimiter) Middleware(limited func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limited(r) && !rl.allow(clientIP(r)) {
				w.Header().Set("Retry-After", "60")
				WriteError(w, http.StatusTooManyRequests, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr, falling back to the raw value.
func clientIP(r *http.Request) string {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	return ip
}
