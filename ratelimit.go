package tailz

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// RateLimiter admits at most limit events per fixed window.
//
// Windows are aligned to wall-clock boundaries (now.Truncate(window)), so
// every policy sharing a limiter sees the same window start and the budget
// resets for all of them at once. Safe for concurrent use.
type RateLimiter struct {
	clock       clockz.Clock
	windowStart time.Time
	window      time.Duration
	limit       int
	used        int
	mu          sync.Mutex
}

// NewRateLimiter creates a limiter allowing limit events per window.
// A nil clock uses the real clock.
func NewRateLimiter(limit int, window time.Duration, clock clockz.Clock) *RateLimiter {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &RateLimiter{
		clock:  clock,
		window: window,
		limit:  limit,
	}
}

// Allow consumes one unit of budget if any is left in the current window.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll()
	if l.used >= l.limit {
		return false
	}
	l.used++
	return true
}

// Remaining returns the budget left in the current window.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll()
	return l.limit - l.used
}

// Reset clears the budget used in the current window.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.used = 0
	l.windowStart = l.clock.Now().Truncate(l.window)
}

// roll starts a new window when the clock crossed a boundary. Callers hold mu.
func (l *RateLimiter) roll() {
	start := l.clock.Now().Truncate(l.window)
	if !start.Equal(l.windowStart) {
		l.windowStart = start
		l.used = 0
	}
}
