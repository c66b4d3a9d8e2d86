package app

import (
	"fmt"
	"testing"
	"time"

	"campfire/internal/ratelimit"
	"campfire/pkg/domain"
	"campfire/pkg/realtime"
	"campfire/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *realtime.Hub) {
	t.Helper()
	dataStore := store.NewMemoryStore()
	err := dataStore.SeedChannels(t.Context(), []domain.Channel{
		{ID: "ch-general", Slug: "general", Name: "General", Type: domain.ChannelChat, MinRole: domain.RoleMember},
		{ID: "ch-news", Slug: "announcements", Name: "Announcements", Type: domain.ChannelChat, Readonly: true, MinRole: domain.RoleMember},
		{ID: "ch-help", Slug: "help", Name: "Help", Type: domain.ChannelForum, MinRole: domain.RoleMember},
	})
	if err != nil {
		t.Fatalf("seed channels: %v", err)
	}
	hub := realtime.NewHub(nil, "")
	t.Cleanup(hub.Shutdown)
	limits, err := ratelimit.NewSet(nil)
	if err != nil {
		t.Fatalf("new limits: %v", err)
	}
	t.Cleanup(limits.Close)
	a, err := New(Config{Store: dataStore, Hub: hub, Limits: limits})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, dataStore, hub
}

func seedMember(t *testing.T, s *store.MemoryStore, id string, role domain.Role) domain.Member {
	t.Helper()
	m := domain.Member{ID: id, DisplayName: id, Role: role}
	if err := s.UpsertMember(t.Context(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func TestListMessagesPaginatesWithCursor(t *testing.T) {
	a, s, _ := newTestApp(t)
	ada := seedMember(t, s, "u-ada", domain.RoleMember)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		_, err := s.CreateMessage(t.Context(), domain.Message{
			ID: fmt.Sprintf("m-%02d", i), ChannelID: "ch-general", AuthorID: "u-ada",
			Content: fmt.Sprintf("msg %d", i), CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := a.ListMessages(t.Context(), ada, "ch-general", 5, cursor)
		if err != nil {
			t.Fatalf("list messages: %v", err)
		}
		for _, m := range page.Messages {
			if seen[m.ID] {
				t.Fatalf("message %s returned twice", m.ID)
			}
			seen[m.ID] = true
		}
		pages++
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 12 || pages != 3 {
		t.Fatalf("saw %d messages over %d pages, want 12 over 3", len(seen), pages)
	}
}

func TestSendMessageClearsTypingAndPublishes(t *testing.T) {
	a, s, hub := newTestApp(t)
	ada := seedMember(t, s, "u-ada", domain.RoleMember)

	sub := hub.Subscribe("ch-general")
	defer sub.Close()

	if err := a.Typing(t.Context(), ada, "ch-general"); err != nil {
		t.Fatalf("typing: %v", err)
	}
	<-sub.C // typing event

	msg, err := a.SendMessage(t.Context(), ada, "ch-general", "hello", "", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case ev := <-sub.C:
		if ev.Entity != realtime.EntityMessage || ev.Op != realtime.OpInsert || ev.EntityID != msg.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no message event published")
	}

	typists, err := a.TypingSnapshot(t.Context(), ada, "ch-general")
	if err != nil {
		t.Fatalf("typing snapshot: %v", err)
	}
	if len(typists) != 0 {
		t.Fatalf("sending should clear the typing signal: %v", typists)
	}
}

func TestAnnouncementNotifiesEveryMember(t *testing.T) {
	a, s, _ := newTestApp(t)
	admin := seedMember(t, s, "u-admin", domain.RoleAdmin)
	seedMember(t, s, "u-ada", domain.RoleMember)
	seedMember(t, s, "u-ben", domain.RoleMember)

	if _, err := a.PostAnnouncement(t.Context(), admin, "ch-news", "maintenance tonight"); err != nil {
		t.Fatalf("announce: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		adaNotifs, err := s.ListNotifications(t.Context(), "u-ada", 10)
		if err != nil {
			t.Fatalf("list notifications: %v", err)
		}
		benNotifs, _ := s.ListNotifications(t.Context(), "u-ben", 10)
		if len(adaNotifs) == 1 && len(benNotifs) == 1 {
			if adaNotifs[0].Type != domain.NotifyAnnouncement {
				t.Fatalf("unexpected type: %+v", adaNotifs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("announcement fan-out incomplete: ada=%d ben=%d", len(adaNotifs), len(benNotifs))
		}
		time.Sleep(5 * time.Millisecond)
	}

	adminNotifs, _ := s.ListNotifications(t.Context(), "u-admin", 10)
	if len(adminNotifs) != 0 {
		t.Fatalf("author must not receive the announcement: %+v", adminNotifs)
	}
}

func TestReadonlyChannelRejectsSendsForEveryRole(t *testing.T) {
	a, s, _ := newTestApp(t)
	members := []domain.Member{
		seedMember(t, s, "u-ada", domain.RoleMember),
		seedMember(t, s, "u-mod", domain.RoleModerator),
		seedMember(t, s, "u-admin", domain.RoleAdmin),
	}
	for _, m := range members {
		if _, err := a.SendMessage(t.Context(), m, "ch-news", "hello", "", ""); !domain.IsKind(err, domain.KindForbidden) {
			t.Fatalf("send by %s in readonly channel: err=%v", m.Role, err)
		}
	}
}

func TestAnnouncementIsTheOnlyReadonlyBypass(t *testing.T) {
	a, s, _ := newTestApp(t)
	mod := seedMember(t, s, "u-mod", domain.RoleModerator)
	ada := seedMember(t, s, "u-ada", domain.RoleMember)

	msg, err := a.PostAnnouncement(t.Context(), mod, "ch-news", "pinned rules")
	if err != nil {
		t.Fatalf("moderator announce: %v", err)
	}
	if _, err := a.PostAnnouncement(t.Context(), ada, "ch-news", "nope"); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("member announce: err=%v", err)
	}

	// Follow-up writes against the announcement stay rejected too.
	if _, err := a.EditMessage(t.Context(), mod, msg.ID, "amended"); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("edit in readonly channel: err=%v", err)
	}
	if _, err := a.ToggleReaction(t.Context(), ada, msg.ID, "👍"); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("reaction in readonly channel: err=%v", err)
	}
}

func TestMarkReadOnlyMovesForward(t *testing.T) {
	a, s, _ := newTestApp(t)
	ada := seedMember(t, s, "u-ada", domain.RoleMember)

	newer := time.Now().UTC()
	older := newer.Add(-time.Minute)
	if err := a.MarkRead(t.Context(), ada, "ch-general", newer); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := a.MarkRead(t.Context(), ada, "ch-general", older); err != nil {
		t.Fatalf("stale mark read should no-op, not fail: %v", err)
	}
	marker, found, err := s.GetReadMarker(t.Context(), "u-ada", "ch-general")
	if err != nil || !found {
		t.Fatalf("get marker: found=%v err=%v", found, err)
	}
	if !marker.LastReadAt.Equal(newer) {
		t.Fatalf("watermark moved backwards: %v", marker.LastReadAt)
	}
}

func TestChannelOverviewsCarryLatestActivity(t *testing.T) {
	a, s, _ := newTestApp(t)
	ada := seedMember(t, s, "u-ada", domain.RoleMember)

	at := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := s.CreateMessage(t.Context(), domain.Message{
		ID: "m-1", ChannelID: "ch-general", AuthorID: "u-other", Content: "hi", CreatedAt: at,
	}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	overviews, err := a.ChannelOverviews(t.Context(), ada)
	if err != nil {
		t.Fatalf("overviews: %v", err)
	}
	for _, ov := range overviews {
		if ov.Slug == "general" {
			if ov.UnreadCount != 1 || !ov.HasUnread {
				t.Fatalf("unexpected unread state: %+v", ov)
			}
			if ov.LatestMessageAt == nil || !ov.LatestMessageAt.Equal(at) {
				t.Fatalf("latest activity lost: %+v", ov.LatestMessageAt)
			}
			return
		}
	}
	t.Fatalf("general channel missing from overviews")
}

func TestHeartbeatWithoutPresenceBackendIsNoop(t *testing.T) {
	a, s, _ := newTestApp(t)
	ada := seedMember(t, s, "u-ada", domain.RoleMember)

	if err := a.Heartbeat(t.Context(), ada, "ch-general"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	online, err := a.PresenceSnapshot(t.Context(), ada, "ch-general")
	if err != nil || len(online) != 0 {
		t.Fatalf("snapshot without backend: online=%v err=%v", online, err)
	}
}

func TestCurrentMemberKeepsStoredRole(t *testing.T) {
	a, s, _ := newTestApp(t)
	seedMember(t, s, "u-ada", domain.RoleModerator)

	// The token still carries the stale member role.
	member, err := a.CurrentMember(t.Context(), domain.Member{
		ID: "u-ada", DisplayName: "Ada Updated", Role: domain.RoleMember,
	})
	if err != nil {
		t.Fatalf("current member: %v", err)
	}
	if member.Role != domain.RoleModerator {
		t.Fatalf("stored role must win over token role, got %s", member.Role)
	}
	if member.DisplayName != "Ada Updated" {
		t.Fatalf("display name should refresh from claims, got %s", member.DisplayName)
	}
}
