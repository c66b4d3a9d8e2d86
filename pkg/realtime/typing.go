package realtime

import (
	"sync"
	"time"
)

// TypingTTL is how long a typing signal stays visible without renewal.
const TypingTTL = 3 * time.Second

// TypingTracker holds short-lived "member is typing" state per channel.
// Typing is ephemeral UI state, so it lives in process memory and expires
// on read; it is never persisted or replayed after reconnect.
type TypingTracker struct {
	now func() time.Time

	mu      sync.Mutex
	typists map[string]map[string]time.Time
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		now:     time.Now,
		typists: make(map[string]map[string]time.Time),
	}
}

// Touch records that the member is typing in the channel. Each keystroke
// batch renews the expiry; an explicit stop is not required.
func (t *TypingTracker) Touch(channelID, memberID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	perChannel, ok := t.typists[channelID]
	if !ok {
		perChannel = make(map[string]time.Time)
		t.typists[channelID] = perChannel
	}
	perChannel[memberID] = t.now().Add(TypingTTL)
}

// Stop clears the member's typing state, as when a message is sent.
func (t *TypingTracker) Stop(channelID, memberID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	perChannel, ok := t.typists[channelID]
	if !ok {
		return
	}
	delete(perChannel, memberID)
	if len(perChannel) == 0 {
		delete(t.typists, channelID)
	}
}

// Snapshot returns members still typing in the channel, pruning expired
// entries as it goes.
func (t *TypingTracker) Snapshot(channelID string) []string {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	perChannel := t.typists[channelID]
	var active []string
	for memberID, expiry := range perChannel {
		if expiry.Before(now) {
			delete(perChannel, memberID)
			continue
		}
		active = append(active, memberID)
	}
	if len(perChannel) == 0 {
		delete(t.typists, channelID)
	}
	return active
}
