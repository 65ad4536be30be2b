package core

// request_limiter.go implements concurrency control for device requests.
//
// The eBUS adapter runs a tiny single-core web server that falls over when
// several browser tabs poll it at once. The limiter uses a semaphore to cap
// parallel requests to a configurable maximum. When all slots are occupied,
// new requests wait up to maxWait before failing with ErrDeviceBusy.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentRequests is the default limit for parallel device requests.
const DefaultMaxConcurrentRequests = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// RequestLimiter controls concurrent device requests using a semaphore pattern.
type RequestLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewRequestLimiter creates a limiter that allows at most maxConcurrent simultaneous requests.
// Requests that cannot acquire a slot within maxWait will receive ErrDeviceBusy.
func NewRequestLimiter(maxConcurrent int, maxWait time.Duration) *RequestLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRequests
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &RequestLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a request slot.
// Returns nil on success, ErrDeviceBusy if the wait expires.
// The caller MUST call Release() when the request completes (use defer).
func (l *RequestLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish caller cancellation from our own wait timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrDeviceBusy
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *RequestLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *RequestLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of in-flight device requests.
func (l *RequestLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *RequestLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all in-flight requests complete or ctx is done.
// Used during shutdown.
func (l *RequestLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RequestLimiterStatus is a snapshot of the limiter's state.
type RequestLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *RequestLimiter) Status() RequestLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return RequestLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
