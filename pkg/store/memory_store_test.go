package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"campfire/pkg/domain"
)

func seedMessage(t *testing.T, s Store, id, channelID string, at time.Time) domain.Message {
	t.Helper()
	msg, err := s.CreateMessage(context.Background(), domain.Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  "author-1",
		Content:   "message " + id,
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("create message %s: %v", id, err)
	}
	return msg
}

func TestListMessagesPaginationCompleteness(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	const total = 25
	for i := 0; i < total; i++ {
		seedMessage(t, s, fmt.Sprintf("m-%02d", i), "ch-1", base.Add(time.Duration(i)*time.Second))
	}

	seen := map[string]int{}
	cursor := ""
	pages := 0
	var prev domain.Message
	first := true
	for {
		msgs, hasMore, err := s.ListMessages(ctx, "ch-1", 7, cursor)
		if err != nil {
			t.Fatalf("list page: %v", err)
		}
		for _, m := range msgs {
			seen[m.ID]++
			if !first && m.CreatedAt.After(prev.CreatedAt) {
				t.Fatalf("page order broken: %s after %s", m.ID, prev.ID)
			}
			prev = m
			first = false
		}
		// New rows arriving mid-pagination must not duplicate or skip
		// anything already fetched.
		if pages == 1 {
			seedMessage(t, s, "late-arrival", "ch-1", base.Add(time.Hour))
		}
		pages++
		if !hasMore {
			break
		}
		last := msgs[len(msgs)-1]
		cursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}

	if len(seen) != total {
		t.Fatalf("expected %d distinct messages, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("message %s fetched %d times", id, n)
		}
	}
}

func TestListMessagesTieBreakOnEqualTimestamps(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Coarse clock: every row shares a timestamp; seq must break ties.
	for i := 0; i < 6; i++ {
		seedMessage(t, s, fmt.Sprintf("tie-%d", i), "ch-1", at)
	}

	var collected []string
	cursor := ""
	for {
		msgs, hasMore, err := s.ListMessages(ctx, "ch-1", 2, cursor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, m := range msgs {
			collected = append(collected, m.ID)
		}
		if !hasMore {
			break
		}
		last := msgs[len(msgs)-1]
		cursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}
	if len(collected) != 6 {
		t.Fatalf("expected 6 rows across pages, got %d (%v)", len(collected), collected)
	}
	want := []string{"tie-5", "tie-4", "tie-3", "tie-2", "tie-1", "tie-0"}
	for i, id := range want {
		if collected[i] != id {
			t.Fatalf("position %d: want %s got %s", i, id, collected[i])
		}
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeCursor("not-base64!!"); !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if _, has, err := DecodeCursor("  "); err != nil || has {
		t.Fatalf("blank cursor should mean no cursor, got has=%v err=%v", has, err)
	}
	c := Cursor{CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC), Seq: 42}
	decoded, has, err := DecodeCursor(EncodeCursor(c))
	if err != nil || !has {
		t.Fatalf("roundtrip failed: has=%v err=%v", has, err)
	}
	if !decoded.CreatedAt.Equal(c.CreatedAt) || decoded.Seq != c.Seq {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", decoded, c)
	}
}

func TestToggleReactionRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msg := seedMessage(t, s, "m-1", "ch-1", time.Now().UTC())

	added, err := s.ToggleReaction(ctx, msg.ID, "u-1", "👍")
	if err != nil || !added {
		t.Fatalf("first toggle: added=%v err=%v", added, err)
	}
	added, err = s.ToggleReaction(ctx, msg.ID, "u-1", "👍")
	if err != nil || added {
		t.Fatalf("second toggle should remove: added=%v err=%v", added, err)
	}
	summaries, err := s.ReactionSummaries(ctx, []string{msg.ID}, "u-1")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries[msg.ID]) != 0 {
		t.Fatalf("expected no reactions after double toggle, got %+v", summaries[msg.ID])
	}
}

func TestConcurrentTogglesFromDistinctMembers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msg := seedMessage(t, s, "m-1", "ch-1", time.Now().UTC())

	var wg sync.WaitGroup
	members := []string{"u-1", "u-2"}
	for _, member := range members {
		wg.Add(1)
		go func(member string) {
			defer wg.Done()
			if _, err := s.ToggleReaction(ctx, msg.ID, member, "🔥"); err != nil {
				t.Errorf("toggle %s: %v", member, err)
			}
		}(member)
	}
	wg.Wait()

	summaries, err := s.ReactionSummaries(ctx, []string{msg.ID}, "u-1")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries[msg.ID]) != 1 || summaries[msg.ID][0].Count != 2 {
		t.Fatalf("both members' reactions must survive, got %+v", summaries[msg.ID])
	}
	if !summaries[msg.ID][0].ReactedBy {
		t.Fatalf("requester flag should be set for u-1")
	}
}

func TestReactionSummariesRequesterFlag(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msg := seedMessage(t, s, "m-1", "ch-1", time.Now().UTC())

	for _, member := range []string{"u-1", "u-2", "u-3"} {
		if _, err := s.ToggleReaction(ctx, msg.ID, member, "👍"); err != nil {
			t.Fatalf("toggle: %v", err)
		}
	}
	if _, err := s.ToggleReaction(ctx, msg.ID, "u-2", "🎉"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	summaries, err := s.ReactionSummaries(ctx, []string{msg.ID}, "u-3")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	rows := summaries[msg.ID]
	if len(rows) != 2 {
		t.Fatalf("expected 2 emoji groups, got %+v", rows)
	}
	byEmoji := map[string]domain.ReactionSummary{}
	for _, r := range rows {
		byEmoji[r.Emoji] = r
	}
	if byEmoji["👍"].Count != 3 || !byEmoji["👍"].ReactedBy {
		t.Fatalf("thumbs-up tally wrong: %+v", byEmoji["👍"])
	}
	if byEmoji["🎉"].Count != 1 || byEmoji["🎉"].ReactedBy {
		t.Fatalf("party tally wrong: %+v", byEmoji["🎉"])
	}
}

func TestUnreadCountsWatermark(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)
	seedMessage(t, s, "m-1", "ch-1", t1)
	seedMessage(t, s, "m-2", "ch-1", t2)
	seedMessage(t, s, "m-3", "ch-1", t3)

	// No marker: the whole channel is unread.
	counts, err := s.UnreadCounts(ctx, "u-1", []string{"ch-1"})
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if counts["ch-1"] != 3 {
		t.Fatalf("never-visited channel: want 3 unread, got %d", counts["ch-1"])
	}

	if err := s.MarkRead(ctx, "u-1", "ch-1", t2); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	counts, err = s.UnreadCounts(ctx, "u-1", []string{"ch-1"})
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if counts["ch-1"] != 1 {
		t.Fatalf("marker at t2: want 1 unread, got %d", counts["ch-1"])
	}

	if err := s.MarkRead(ctx, "u-1", "ch-1", t3); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	counts, err = s.UnreadCounts(ctx, "u-1", []string{"ch-1"})
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if counts["ch-1"] != 0 {
		t.Fatalf("marker at t3: want 0 unread, got %d", counts["ch-1"])
	}
}

func TestMarkNotificationsReadIsOwnerScoped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateNotification(ctx, domain.Notification{
		ID: "n-1", RecipientID: "owner", SenderID: "other", Type: domain.NotifyReply,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.MarkNotificationsRead(ctx, "intruder", []string{"n-1"})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if updated != 0 {
		t.Fatalf("cross-member mark-read must touch nothing, updated=%d", updated)
	}
	rows, err := s.ListNotifications(ctx, "owner", 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list: %v rows=%d", err, len(rows))
	}
	if rows[0].Read {
		t.Fatalf("notification must stay unread after foreign mark-read")
	}

	if _, err := s.MarkNotificationsRead(ctx, "owner", []string{"n-1"}); err != nil {
		t.Fatalf("owner mark read: %v", err)
	}
	rows, _ = s.ListNotifications(ctx, "owner", 10)
	if !rows[0].Read {
		t.Fatalf("owner mark-read should flip the flag")
	}
}

func TestDeleteMessageRemovesReactions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	msg := seedMessage(t, s, "m-1", "ch-1", time.Now().UTC())
	if _, err := s.ToggleReaction(ctx, msg.ID, "u-1", "👍"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if err := s.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteMessage(ctx, msg.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("second delete should be not-found, got %v", err)
	}
	summaries, err := s.ReactionSummaries(ctx, []string{msg.ID}, "u-1")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries[msg.ID]) != 0 {
		t.Fatalf("reactions must go with the message")
	}
}

func TestSearchMinimumAndMatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedMessage(t, s, "m-1", "ch-1", time.Now().UTC())
	if _, err := s.CreateMessage(ctx, domain.Message{
		ID: "m-2", ChannelID: "ch-1", AuthorID: "a", Content: "deployment runbook",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	hits, err := s.SearchMessages(ctx, "runbook", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "m-2" {
		t.Fatalf("expected one hit for runbook, got %+v", hits)
	}
}
