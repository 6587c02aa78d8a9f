package gateway

import (
	"sync"
	"time"
)

// Limiter bounds a session's request rate over a sliding one-minute window
// and the number of requests in flight at once.
type Limiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	requests          []time.Time
	inFlight          int
	now               func() time.Time
}

// NewLimiter creates a limiter. Zero or negative limits disable that check.
func NewLimiter(requestsPerMinute, maxConcurrent int) *Limiter {
	return &Limiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// Acquire admits a request or returns the RPC error to send back. Every
// successful Acquire must be paired with Release.
func (l *Limiter) Acquire() *RPCError {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxConcurrent > 0 && l.inFlight >= l.maxConcurrent {
		return &RPCError{Code: TooManyConcurrent, Message: "too many concurrent requests"}
	}

	now := l.now()
	l.prune(now)
	if l.requestsPerMinute > 0 && len(l.requests) >= l.requestsPerMinute {
		return &RPCError{Code: RateLimitExceeded, Message: "rate limit exceeded"}
	}

	l.requests = append(l.requests, now)
	l.inFlight++
	return nil
}

// Release marks an admitted request as finished.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight > 0 {
		l.inFlight--
	}
}

// Stats returns the requests in the current window and those in flight.
func (l *Limiter) Stats() (requests, inFlight int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.requests), l.inFlight
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	kept := l.requests[:0]
	for _, at := range l.requests {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	l.requests = kept
}
