// Package reconcile tracks optimistic local sends until the server
// acknowledges them. Every transition is a pure function over the entry
// list, so callers can replay acks and retries in any order and converge
// on the same state.
package reconcile

import (
	"time"

	"campfire/pkg/domain"
)

// Status is the lifecycle of one optimistic send.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// Entry is one locally sent message awaiting server confirmation,
// keyed by the client-generated temp id.
type Entry struct {
	TempID    string
	Status    Status
	Message   domain.Message
	LastError string
	UpdatedAt time.Time
}

// Begin appends a new pending entry for an optimistic send. A temp id
// already in the list is returned unchanged: a duplicate begin is a
// retry bug on the caller's side, not a second message.
func Begin(entries []Entry, tempID string, msg domain.Message) []Entry {
	if _, ok := find(entries, tempID); ok {
		return entries
	}
	out := cloneEntries(entries)
	return append(out, Entry{
		TempID:    tempID,
		Status:    StatusPending,
		Message:   msg,
		UpdatedAt: time.Now().UTC(),
	})
}

// Ack marks the entry committed with the server's authoritative copy.
// Acking an already committed entry is a no-op, so a duplicated ack
// (push plus poll seeing the same message) never double-applies.
func Ack(entries []Entry, tempID string, server domain.Message) []Entry {
	i, ok := find(entries, tempID)
	if !ok || entries[i].Status == StatusCommitted {
		return entries
	}
	out := cloneEntries(entries)
	out[i].Status = StatusCommitted
	out[i].Message = server
	out[i].LastError = ""
	out[i].UpdatedAt = time.Now().UTC()
	return out
}

// Fail marks a pending entry failed. Committed entries stay committed:
// a late failure signal after a successful ack is stale.
func Fail(entries []Entry, tempID, reason string) []Entry {
	i, ok := find(entries, tempID)
	if !ok || entries[i].Status != StatusPending {
		return entries
	}
	out := cloneEntries(entries)
	out[i].Status = StatusFailed
	out[i].LastError = reason
	out[i].UpdatedAt = time.Now().UTC()
	return out
}

// Retry moves a failed entry back to pending under the same temp id, so
// the server-side send can be replayed without minting a new identity.
func Retry(entries []Entry, tempID string) []Entry {
	i, ok := find(entries, tempID)
	if !ok || entries[i].Status != StatusFailed {
		return entries
	}
	out := cloneEntries(entries)
	out[i].Status = StatusPending
	out[i].LastError = ""
	out[i].UpdatedAt = time.Now().UTC()
	return out
}

// Prune drops committed entries whose server copy already appears in the
// fetched message list, keeping the pending/failed tail for display.
func Prune(entries []Entry, fetched []domain.Message) []Entry {
	seen := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		seen[m.ID] = true
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == StatusCommitted && seen[e.Message.ID] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Merge renders the display list: fetched server messages followed by
// local sends the server has not confirmed yet. Committed entries whose
// message is already in the fetched list are skipped, never duplicated.
func Merge(fetched []domain.Message, entries []Entry) []domain.Message {
	seen := make(map[string]bool, len(fetched))
	out := make([]domain.Message, 0, len(fetched)+len(entries))
	for _, m := range fetched {
		seen[m.ID] = true
		out = append(out, m)
	}
	for _, e := range entries {
		if e.Status == StatusCommitted && seen[e.Message.ID] {
			continue
		}
		out = append(out, e.Message)
	}
	return out
}

func find(entries []Entry, tempID string) (int, bool) {
	for i := range entries {
		if entries[i].TempID == tempID {
			return i, true
		}
	}
	return 0, false
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
