package ratelimit

import (
	"testing"
	"time"
)

func TestSlidingWindowExactBoundary(t *testing.T) {
	limiter, err := NewSlidingWindowLimiter(3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	for i := 0; i < 3; i++ {
		d := limiter.Admit("member-1")
		if !d.Allowed {
			t.Fatalf("request %d should pass", i+1)
		}
		if d.Remaining != 2-i {
			t.Fatalf("request %d: want remaining %d, got %d", i+1, 2-i, d.Remaining)
		}
	}
	d := limiter.Admit("member-1")
	if d.Allowed {
		t.Fatalf("request over quota should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %v", d.RetryAfter)
	}
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	limiter, err := NewSlidingWindowLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Admit("member-1").Allowed {
		t.Fatalf("member-1 first request should pass")
	}
	if !limiter.Admit("member-2").Allowed {
		t.Fatalf("member-2 must not share member-1's quota")
	}
	if limiter.Admit("member-1").Allowed {
		t.Fatalf("member-1 second request should be blocked")
	}
}

func TestSlidingWindowRecoversAsEntriesAge(t *testing.T) {
	limiter, err := NewSlidingWindowLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	limiter.Admit("member-1")
	current = current.Add(30 * time.Second)
	limiter.Admit("member-1")
	if limiter.Admit("member-1").Allowed {
		t.Fatalf("quota exhausted, request should be blocked")
	}

	// 61s after the first admit: only the second still counts.
	current = current.Add(31 * time.Second)
	d := limiter.Admit("member-1")
	if !d.Allowed {
		t.Fatalf("oldest entry aged out, request should pass")
	}
	if limiter.Admit("member-1").Allowed {
		t.Fatalf("window slid, quota is full again")
	}
}

func TestSlidingWindowSweepDropsIdleKeys(t *testing.T) {
	limiter, err := NewSlidingWindowLimiter(5, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	limiter.Admit("member-1")
	limiter.Admit("member-2")
	current = current.Add(2 * time.Minute)
	limiter.Sweep()

	limiter.mu.Lock()
	n := len(limiter.entries)
	limiter.mu.Unlock()
	if n != 0 {
		t.Fatalf("sweep should drop fully aged keys, %d left", n)
	}
}

func TestNilLimiterFailsClosed(t *testing.T) {
	var limiter *SlidingWindowLimiter
	if limiter.Admit("member-1").Allowed {
		t.Fatalf("nil limiter must not admit")
	}
}

func TestNewSlidingWindowLimiterValidation(t *testing.T) {
	if _, err := NewSlidingWindowLimiter(0, time.Minute); err == nil {
		t.Fatalf("zero limit should be rejected")
	}
	if _, err := NewSlidingWindowLimiter(5, 0); err == nil {
		t.Fatalf("zero window should be rejected")
	}
}

func TestSetUnknownActionFailsClosed(t *testing.T) {
	set, err := NewSet(nil)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	defer set.Close()
	if set.Admit(Action("no-such-action"), "member-1").Allowed {
		t.Fatalf("unknown action must not be unlimited")
	}
	if !set.Admit(ActionSendMessage, "member-1").Allowed {
		t.Fatalf("known action within quota should pass")
	}
}
