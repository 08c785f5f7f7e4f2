// Package ratelimit bounds how many fetches may start per unit of time.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the result of a rate limit attempt.
type Decision struct {
	Allowed bool
	// RetryAfter is the time until the current window resets. Zero when allowed.
	RetryAfter time.Duration
	// Count is the number of attempts recorded in the current window,
	// including this one.
	Count int
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *FixedWindow) {
		w.now = now
	}
}

// FixedWindow is a fixed-window counter shared by every caller holding it.
// Up to capacity attempts are allowed per window. Because windows are fixed,
// up to twice the capacity can pass across a window boundary.
type FixedWindow struct {
	capacity int
	window   time.Duration
	now      func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewFixedWindow creates a limiter allowing capacity attempts per window.
// Non-positive values fall back to 60 attempts per minute.
func NewFixedWindow(capacity int, window time.Duration, opts ...Option) *FixedWindow {
	if capacity <= 0 {
		capacity = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	w := &FixedWindow{
		capacity: capacity,
		window:   window,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.windowStart = w.now()
	return w
}

// Attempt records one attempt and reports whether it may proceed.
func (w *FixedWindow) Attempt() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !now.Before(w.windowStart.Add(w.window)) {
		w.windowStart = now
		w.count = 0
	}

	w.count++
	if w.count <= w.capacity {
		return Decision{Allowed: true, Count: w.count}
	}
	return Decision{
		Allowed:    false,
		RetryAfter: w.windowStart.Add(w.window).Sub(now),
		Count:      w.count,
	}
}

// Capacity returns the number of attempts allowed per window.
func (w *FixedWindow) Capacity() int {
	return w.capacity
}

// Window returns the window duration.
func (w *FixedWindow) Window() time.Duration {
	return w.window
}
