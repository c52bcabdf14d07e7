// ABOUTME: Per-client rate limiting for the channel endpoints
// ABOUTME: Token buckets keyed by remote IP, with idle buckets swept periodically

package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/alexa-bridge/internal/config"
)

// limiterIdleTTL is how long an unused bucket is kept.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu  sync.Mutex
	m   map[string]*limiterEntry
	cfg config.RateLimitConfig
	now func() time.Time
}

func newLimiterPool(cfg config.RateLimitConfig) *limiterPool {
	return &limiterPool{
		m:   make(map[string]*limiterEntry),
		cfg: cfg,
		now: time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

// Allow reports whether key may make a request now.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// sweep drops buckets idle for longer than limiterIdleTTL.
func (p *limiterPool) sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-limiterIdleTTL)
	removed := 0
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
			removed++
		}
	}
	return removed
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// rateLimit wraps next with the pool. A nil pool disables limiting.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.limiters == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !g.limiters.Allow(key) {
			g.logger.Warn("rate limited", "client", key, "path", r.URL.Path)
			sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
