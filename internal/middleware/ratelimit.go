package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/josh-kwaku/sbp-gateway/internal/logging"
)

const (
	limiterIdleTTL    = 30 * time.Minute
	limiterSweepEvery = 5 * time.Minute
)

type clientLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimiter is a per client IP token bucket.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *RateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterSweepEvery {
		for k, c := range l.clients {
			if now.Sub(c.last) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.last = now
	return c.limiter.AllowN(now, 1)
}

// Middleware limits next, answering rejected requests with reject so each
// route family keeps its own response shape.
func (l *RateLimiter) Middleware(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.allow(ip) {
				logging.FromContext(r.Context()).Warn("rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
