package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// multiLimiter keeps one token bucket per username so a flood of guesses
// against one account cannot exhaust attempts for the others.
type multiLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newMultiLimiter(r rate.Limit, burst int) *multiLimiter {
	return &multiLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

func (m *multiLimiter) allow(key string) bool {
	m.mu.Lock()
	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = l
	}
	m.mu.Unlock()
	return l.Allow()
}

// failureRecord tracks consecutive bad attempts for lockout.
type failureRecord struct {
	count       int
	lockedUntil time.Time
}

// failureTracker escalates repeated authentication failures into a timed
// lockout per username.
type failureTracker struct {
	mu          sync.Mutex
	records     map[string]*failureRecord
	maxFailures int
	lockout     time.Duration
}

func newFailureTracker(maxFailures int, lockout time.Duration) *failureTracker {
	return &failureTracker{
		records:     make(map[string]*failureRecord),
		maxFailures: maxFailures,
		lockout:     lockout,
	}
}

// fail records a bad attempt and reports whether the username just crossed
// into lockout.
func (t *failureTracker) fail(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[username]
	if !ok {
		r = &failureRecord{}
		t.records[username] = r
	}
	r.count++
	if r.count >= t.maxFailures {
		r.lockedUntil = time.Now().Add(t.lockout)
		r.count = 0
		return true
	}
	return false
}

func (t *failureTracker) locked(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[username]
	return ok && time.Now().Before(r.lockedUntil)
}

func (t *failureTracker) reset(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, username)
}
