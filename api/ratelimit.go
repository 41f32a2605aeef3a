package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateWindow is the period the per-route limits are expressed in.
const rateWindow = time.Hour

// maxIdleClients bounds the tracked clients before idle ones are pruned.
const maxIdleClients = 10000

// rateLimiter allows perWindow requests per client IP and window, with the
// whole allowance available as a burst.
type rateLimiter struct {
	route     string
	perWindow int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(route string, perWindow int) *rateLimiter {
	return &rateLimiter{
		route:     route,
		perWindow: perWindow,
		clients:   make(map[string]*clientLimiter),
		now:       time.Now,
	}
}

// allow reports whether the client may proceed and, if not, how long it
// should wait.
func (rl *rateLimiter) allow(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= maxIdleClients {
			rl.prune(now)
		}
		every := rateWindow / time.Duration(rl.perWindow)
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Every(every), rl.perWindow)}
		rl.clients[client] = c
	}
	c.lastSeen = now

	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// prune drops clients idle for a full window; their bucket is full again.
func (rl *rateLimiter) prune(now time.Time) {
	for k, c := range rl.clients {
		if now.Sub(c.lastSeen) > rateWindow {
			delete(rl.clients, k)
		}
	}
}

// limit wraps next with the per-client limit. A non-positive allowance
// disables limiting.
func (s *Server) limit(route string, perWindow int, next http.HandlerFunc) http.HandlerFunc {
	if !s.cfg.RateLimits.Enabled || perWindow <= 0 {
		return next
	}
	rl := newRateLimiter(route, perWindow)

	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.allow(clientIP(r))
		if !ok {
			if s.metrics != nil {
				s.metrics.RateLimited(route)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			respondWithError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Too Many Requests: %d per 1 hour", perWindow))
			return
		}
		next(w, r)
	}
}
