package internal

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by client address. It
// guards the mutating file endpoints (upload and delete).
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit hits per key inside window. A limit of zero or
// less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	windowStart := now.Add(-r.window)
	slice := r.hits[key]
	idx := 0
	for _, ts := range slice {
		if ts.After(windowStart) {
			slice[idx] = ts
			idx++
		}
	}
	slice = slice[:idx]
	if len(slice) >= r.limit {
		r.hits[key] = slice
		return false
	}
	if len(slice) == 0 && len(r.hits) > 1024 {
		r.pruneLocked(windowStart)
	}
	r.hits[key] = append(slice, now)
	return true
}

func (r *RateLimiter) pruneLocked(windowStart time.Time) {
	for key, slice := range r.hits {
		if len(slice) == 0 || !slice[len(slice)-1].After(windowStart) {
			delete(r.hits, key)
		}
	}
}

// clientIP returns the host part of the request's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
