package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/noahsadir/courseman/internal/platform/respond"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
)

// LimiterRegistry keeps one token bucket per client key.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterRegistry returns a registry handing out limiters of perSecond
// events with the given burst. Limiters unused for idle are dropped by Sweep.
func NewLimiterRegistry(perSecond float64, burst int, idle time.Duration) *LimiterRegistry {
	if burst < 1 {
		burst = 1
	}
	return &LimiterRegistry{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
	}
}

// GetOrCreate retrieves the limiter for key, creating it on first use.
func (r *LimiterRegistry) GetOrCreate(key string) *rate.Limiter {
	now := time.Now()
	r.mu.RLock()
	e, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		r.mu.Lock()
		e.lastSeen = now
		r.mu.Unlock()
		return e.limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.limiters[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	e = &entry{limiter: rate.NewLimiter(r.limit, r.burst), lastSeen: now}
	r.limiters[key] = e
	return e.limiter
}

// Sweep drops limiters idle since before now minus the idle window and returns how many were dropped.
func (r *LimiterRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.limiters {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.limiters, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked clients.
func (r *LimiterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

// RateLimit rejects requests from a client IP that has exhausted its bucket
// with 429. A nil registry disables limiting.
func RateLimit(reg *LimiterRegistry, m *metrics.Registry, resp respond.Responder) Middleware {
	return func(next http.Handler) http.Handler {
		if reg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := reg.GetOrCreate(ClientIP(r))
			if !limiter.Allow() {
				m.RateLimited(routeFrom(r.Context()))
				res := limiter.Reserve()
				delay := res.Delay()
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
				resp.Fail(w, r, &respond.Failure{
					Status:  http.StatusTooManyRequests,
					Code:    respond.CodeRateLimited,
					Message: "Too many requests; slow down.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
