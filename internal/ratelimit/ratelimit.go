// Package ratelimit implements the per-user sliding-window limiter applied
// before any message processing.
package ratelimit

import (
	"sync"
	"time"
)

// Result reports whether a request is allowed, and if not, how long the
// user should wait.
type Result struct {
	Allowed bool
	Wait    time.Duration
}

// Limiter tracks request timestamps per user over a rolling window.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	users  map[int64][]time.Time
	now    func() time.Time
}

func NewLimiter(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		window: window,
		max:    max,
		users:  make(map[int64][]time.Time),
		now:    time.Now,
	}
}

// Check records a request for userID if allowed, or reports the wait until
// the oldest recorded request leaves the window.
func (l *Limiter) Check(userID int64) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	recent := l.users[userID][:0]
	for _, t := range l.users[userID] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.users[userID] = recent
		return Result{Allowed: false, Wait: l.window - now.Sub(recent[0])}
	}

	l.users[userID] = append(recent, now)
	return Result{Allowed: true}
}

// Cleanup drops users with no requests inside the window. Run it
// periodically so idle users don't accumulate.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.window)
	for userID, times := range l.users {
		active := false
		for _, t := range times {
			if t.After(windowStart) {
				active = true
				break
			}
		}
		if !active {
			delete(l.users, userID)
		}
	}
}
