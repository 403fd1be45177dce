package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window per client IP.
	Max int
	// Window is the rate limit window duration.
	Window time.Duration
}

type rateWindow struct {
	start time.Time
	count int
}

type rateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	clients map[string]*rateWindow
}

func (l *rateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[ip]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.clients[ip] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= l.cfg.Max {
		return false
	}
	w.count++
	return true
}

func (l *rateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, w := range l.clients {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.clients, ip)
		}
	}
}

// RateLimit returns a middleware limiting each client IP to cfg.Max requests
// per cfg.Window. Expired windows are evicted by a background goroutine tied
// to ctx.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := &rateLimiter{cfg: cfg, clients: make(map[string]*rateWindow)}

	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.cleanup(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.allow(ip, time.Now()) {
				w.Header().Set("Retry-After", cfg.Window.String())
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
