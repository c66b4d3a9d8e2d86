package ratelimit

import (
	"fmt"
	"time"
)

// Action names a rate-limited operation class.
type Action string

const (
	ActionSendMessage Action = "send_message"
	ActionForumPost   Action = "forum_post"
	ActionReaction    Action = "reaction"
	ActionReport      Action = "report"
)

// Budget is the quota for one action class.
type Budget struct {
	Limit  int
	Window time.Duration
}

// DefaultBudgets are the per-member quotas applied when config is silent.
func DefaultBudgets() map[Action]Budget {
	return map[Action]Budget{
		ActionSendMessage: {Limit: 30, Window: time.Minute},
		ActionForumPost:   {Limit: 5, Window: time.Minute},
		ActionReaction:    {Limit: 60, Window: time.Minute},
		ActionReport:      {Limit: 5, Window: time.Minute},
	}
}

// Set holds one limiter per action class.
type Set struct {
	limiters map[Action]*SlidingWindowLimiter
	stop     chan struct{}
}

// NewSet builds a limiter per budget and starts a background sweep.
func NewSet(budgets map[Action]Budget) (*Set, error) {
	if len(budgets) == 0 {
		budgets = DefaultBudgets()
	}
	s := &Set{
		limiters: make(map[Action]*SlidingWindowLimiter, len(budgets)),
		stop:     make(chan struct{}),
	}
	for action, b := range budgets {
		l, err := NewSlidingWindowLimiter(b.Limit, b.Window)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", action, err)
		}
		s.limiters[action] = l
	}
	go s.sweepLoop()
	return s, nil
}

// Admit checks the member's quota for the action. Unknown actions fail
// closed so a missing budget never becomes an unlimited one.
func (s *Set) Admit(action Action, memberID string) Decision {
	if s == nil {
		return Decision{}
	}
	return s.limiters[action].Admit(memberID)
}

// Close stops the background sweep.
func (s *Set) Close() {
	if s == nil {
		return
	}
	close(s.stop)
}

func (s *Set) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, l := range s.limiters {
				l.Sweep()
			}
		case <-s.stop:
			return
		}
	}
}
