package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneThreshold is the bucket count at which full buckets are evicted.
const pruneThreshold = 1024

// HostLimiter enforces per-host politeness with a token bucket per host.
// Unlike the domain limiters of a crawler it never waits: an attempt that
// would have to wait is denied with the wait as its retry hint.
type HostLimiter struct {
	interval time.Duration
	burst    int
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	pruneAt  int
}

// NewHostLimiter allows requests attempts per window for each host. It
// returns nil when either value is non-positive; a nil HostLimiter allows
// everything.
func NewHostLimiter(requests int, window time.Duration) *HostLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	interval := window / time.Duration(requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &HostLimiter{
		interval: interval,
		burst:    requests,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		pruneAt:  pruneThreshold,
	}
}

// Attempt records one attempt against host.
func (h *HostLimiter) Attempt(host string) Decision {
	if h == nil || host == "" {
		return Decision{Allowed: true}
	}

	now := h.now()
	limiter := h.limiterFor(strings.ToLower(host), now)
	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: h.interval}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

func (h *HostLimiter) limiterFor(host string, now time.Time) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	limiter, ok := h.limiters[host]
	if !ok {
		if len(h.limiters) >= h.pruneAt {
			h.prune(now)
		}
		limiter = rate.NewLimiter(rate.Every(h.interval), h.burst)
		h.limiters[host] = limiter
	}
	return limiter
}

// prune drops buckets that have refilled completely; a full bucket is
// equivalent to a new one. Callers hold h.mu.
func (h *HostLimiter) prune(now time.Time) {
	for host, limiter := range h.limiters {
		if limiter.TokensAt(now) >= float64(h.burst) {
			delete(h.limiters, host)
		}
	}
	h.pruneAt = max(pruneThreshold, 2*len(h.limiters))
}
