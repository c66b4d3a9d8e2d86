package ratelimit

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// SlidingWindowLimiter limits actions per key over a rolling time window.
// State is process-local: each instance enforces its own quota.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewSlidingWindowLimiter creates a process-local rolling-window limiter.
func NewSlidingWindowLimiter(limit int, window time.Duration) (*SlidingWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &SlidingWindowLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string][]time.Time),
	}, nil
}

// Admit records one action against the key when within quota.
// A nil limiter fails closed.
func (l *SlidingWindowLimiter) Admit(key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	now := l.now().UTC()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := pruneBefore(l.entries[key], cutoff)
	if len(kept) >= l.limit {
		l.entries[key] = kept
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: kept[0].Add(l.window).Sub(now),
		}
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return Decision{Allowed: true, Remaining: l.limit - len(kept)}
}

// Sweep drops keys whose every timestamp has aged out of the window.
// Callers run it periodically to bound memory on churned keys.
func (l *SlidingWindowLimiter) Sweep() {
	if l == nil {
		return
	}
	cutoff := l.now().UTC().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, stamps := range l.entries {
		kept := pruneBefore(stamps, cutoff)
		if len(kept) == 0 {
			delete(l.entries, key)
			continue
		}
		l.entries[key] = kept
	}
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
