package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTimeout is how long an idle client's limiter is retained
// before the cleanup loop drops it.
const limiterIdleTimeout = 10 * time.Minute

// ipLimiter tracks a per-client token bucket.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one rate limiter per remote address.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
}

// newLimiterStore builds a store refilling at requestsPerMinute. The burst
// capacity equals one minute's quota, so a well-behaved client that went
// quiet is never penalised for its first batch of requests.
func newLimiterStore(requestsPerMinute int) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
	}
}

// allow reports whether the client identified by key may proceed.
func (ls *limiterStore) allow(key string) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	l, ok := ls.limiters[key]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(ls.limit, ls.burst)}
		ls.limiters[key] = l
	}
	l.lastSeen = time.Now()
	return l.limiter.Allow()
}

// clean drops limiters that have been idle longer than limiterIdleTimeout.
func (ls *limiterStore) clean() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	cutoff := time.Now().Add(-limiterIdleTimeout)
	for key, l := range ls.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(ls.limiters, key)
		}
	}
}

// rateLimitMiddleware enforces a per-client request budget. Clients are
// keyed by remote IP. Exceeding the budget yields 429 with a structured
// error body.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiters.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP without the port. Falls back to the raw
// RemoteAddr when it is not host:port shaped (as in some test harnesses).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cleanLimitersLoop periodically evicts idle client limiters.
func (s *Server) cleanLimitersLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiters.clean()
		}
	}
}
