package gateway

import (
	"sync"
	"time"
)

const (
	DefaultMessagesPerMinute = 30
	DefaultMaxInFlight       = 1

	reasonRateLimited = "rate limit exceeded"
	reasonBusy        = "a request is already in progress on this connection"
)

// ClientRateLimiter bounds the chat frames of one WebSocket connection with a sliding
// one-minute window and an in-flight cap.
type ClientRateLimiter struct {
	mu          sync.Mutex
	perMinute   int
	maxInFlight int
	requests    []time.Time
	inFlight    int
	now         func() time.Time
}

// NewClientRateLimiter creates a limiter with the default limits.
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(DefaultMessagesPerMinute, DefaultMaxInFlight)
}

// NewClientRateLimiterWithLimits creates a limiter. Non-positive limits use the defaults.
func NewClientRateLimiterWithLimits(perMinute, maxInFlight int) *ClientRateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultMessagesPerMinute
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &ClientRateLimiter{
		perMinute:   perMinute,
		maxInFlight: maxInFlight,
		now:         time.Now,
	}
}

// Acquire admits one request and returns false with a reason when a limit is hit.
// Every admitted request must be paired with Release.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight >= r.maxInFlight {
		return false, reasonBusy
	}

	now := r.now()
	r.prune(now)
	if len(r.requests) >= r.perMinute {
		return false, reasonRateLimited
	}

	r.requests = append(r.requests, now)
	r.inFlight++
	return true, ""
}

// Release marks an admitted request as finished.
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight > 0 {
		r.inFlight--
	}
}

// Stats returns the requests in the current window and those in flight.
func (r *ClientRateLimiter) Stats() (requests, inFlight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return len(r.requests), r.inFlight
}

func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	kept := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.requests = kept
}
