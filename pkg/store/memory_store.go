package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"campfire/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors GormStore semantics, including keyset pagination and the
// toggle convergence behavior.
type MemoryStore struct {
	mu            sync.Mutex
	channels      map[string]domain.Channel
	members       map[string]domain.Member
	messages      map[string]domain.Message
	reactions     map[string]domain.Reaction // key message|member|emoji
	readMarkers   map[string]domain.ReadMarker
	notifications map[string]domain.Notification
	posts         map[string]domain.ForumPost
	comments      map[string]domain.ForumComment
	nextSeq       int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels:      map[string]domain.Channel{},
		members:       map[string]domain.Member{},
		messages:      map[string]domain.Message{},
		reactions:     map[string]domain.Reaction{},
		readMarkers:   map[string]domain.ReadMarker{},
		notifications: map[string]domain.Notification{},
		posts:         map[string]domain.ForumPost{},
		comments:      map[string]domain.ForumComment{},
	}
}

func pairKey(a, b string) string { return a + "|" + b }

func reactionKey(messageID, memberID, emoji string) string {
	return messageID + "|" + memberID + "|" + emoji
}

func (s *MemoryStore) SeedChannels(_ context.Context, channels []domain.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range channels {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		s.channels[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) ListChannels(_ context.Context) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (s *MemoryStore) GetChannel(_ context.Context, id string) (domain.Channel, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[id]
	return c, ok, nil
}

func (s *MemoryStore) GetChannelBySlug(_ context.Context, slug string) (domain.Channel, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		if c.Slug == slug {
			return c, true, nil
		}
	}
	return domain.Channel{}, false, nil
}

func (s *MemoryStore) LatestMessageAt(_ context.Context, channelIDs []string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		wanted[id] = true
	}
	out := make(map[string]time.Time)
	for _, m := range s.messages {
		if !wanted[m.ChannelID] {
			continue
		}
		if cur, ok := out[m.ChannelID]; !ok || m.CreatedAt.After(cur) {
			out[m.ChannelID] = m.CreatedAt
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertMember(_ context.Context, m domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.members[m.ID]; ok {
		existing.DisplayName = m.DisplayName
		existing.AvatarURL = m.AvatarURL
		existing.UpdatedAt = m.UpdatedAt
		s.members[m.ID] = existing
		return nil
	}
	s.members[m.ID] = m
	return nil
}

func (s *MemoryStore) GetMember(_ context.Context, id string) (domain.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	return m, ok, nil
}

func (s *MemoryStore) GetMemberByDisplayName(_ context.Context, name string) (domain.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.DisplayName == name {
			return m, true, nil
		}
	}
	return domain.Member{}, false, nil
}

func (s *MemoryStore) ListMemberIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) ListModeratorIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, m := range s.members {
		if domain.CanModerate(m.Role) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) SetMemberRole(_ context.Context, id string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return domain.ErrMemberNotFound
	}
	m.Role = role
	m.UpdatedAt = time.Now().UTC()
	s.members[id] = m
	return nil
}

func (s *MemoryStore) SetMemberPremium(_ context.Context, id string, premium bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return domain.ErrMemberNotFound
	}
	m.Premium = premium
	m.UpdatedAt = time.Now().UTC()
	s.members[id] = m
	return nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.nextSeq++
	msg.Seq = s.nextSeq
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, channelID string, limit int, cursorToken string) ([]domain.Message, bool, error) {
	limit = ClampLimit(limit)
	cursor, hasCursor, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []domain.Message
	for _, m := range s.messages {
		if m.ChannelID != channelID {
			continue
		}
		if hasCursor && !beforeCursor(m.CreatedAt, m.Seq, cursor) {
			continue
		}
		rows = append(rows, m)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].Seq > rows[j].Seq
	})
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	return rows, hasMore, nil
}

func beforeCursor(createdAt time.Time, seq int64, c Cursor) bool {
	if createdAt.Before(c.CreatedAt) {
		return true
	}
	return createdAt.Equal(c.CreatedAt) && seq < c.Seq
}

func (s *MemoryStore) UpdateMessageContent(_ context.Context, id, content string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	m.Content = content
	m.Edited = true
	s.messages[id] = m
	return m, nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return domain.ErrMessageNotFound
	}
	delete(s.messages, id)
	for key, r := range s.reactions {
		if r.MessageID == id {
			delete(s.reactions, key)
		}
	}
	return nil
}

func (s *MemoryStore) ToggleReaction(_ context.Context, messageID, memberID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reactionKey(messageID, memberID, emoji)
	if _, ok := s.reactions[key]; ok {
		delete(s.reactions, key)
		return false, nil
	}
	s.reactions[key] = domain.Reaction{
		MessageID: messageID,
		MemberID:  memberID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	return true, nil
}

func (s *MemoryStore) ReactionSummaries(_ context.Context, messageIDs []string, requesterID string) (map[string][]domain.ReactionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	var rows []ReactionModel
	for _, r := range s.reactions {
		if !wanted[r.MessageID] {
			continue
		}
		rows = append(rows, ReactionModel{
			MessageID: r.MessageID,
			MemberID:  r.MemberID,
			Emoji:     r.Emoji,
			CreatedAt: r.CreatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return summarizeReactions(rows, requesterID), nil
}

func (s *MemoryStore) MarkRead(_ context.Context, memberID, channelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readMarkers[pairKey(memberID, channelID)] = domain.ReadMarker{
		MemberID:   memberID,
		ChannelID:  channelID,
		LastReadAt: at.UTC(),
	}
	return nil
}

func (s *MemoryStore) GetReadMarker(_ context.Context, memberID, channelID string) (domain.ReadMarker, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker, ok := s.readMarkers[pairKey(memberID, channelID)]
	return marker, ok, nil
}

func (s *MemoryStore) UnreadCounts(_ context.Context, memberID string, channelIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(channelIDs))
	for _, channelID := range channelIDs {
		marker, hasMarker := s.readMarkers[pairKey(memberID, channelID)]
		count := 0
		for _, m := range s.messages {
			if m.ChannelID != channelID {
				continue
			}
			if !hasMarker || m.CreatedAt.After(marker.LastReadAt) {
				count++
			}
		}
		if count > 0 {
			out[channelID] = count
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateNotification(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[n.ID] = n
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	limit = ClampLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationsRead(_ context.Context, recipientID string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, id := range ids {
		n, ok := s.notifications[id]
		if !ok || n.RecipientID != recipientID {
			continue
		}
		if !n.Read {
			n.Read = true
			s.notifications[id] = n
		}
		updated++
	}
	return updated, nil
}

func (s *MemoryStore) CreateForumPost(_ context.Context, p domain.ForumPost) (domain.ForumPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.nextSeq++
	p.Seq = s.nextSeq
	s.posts[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetForumPost(_ context.Context, id string) (domain.ForumPost, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	return p, ok, nil
}

func (s *MemoryStore) ListForumPosts(_ context.Context, channelID string, limit int, cursorToken string) ([]domain.ForumPost, bool, error) {
	limit = ClampLimit(limit)
	cursor, hasCursor, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []domain.ForumPost
	for _, p := range s.posts {
		if p.ChannelID != channelID {
			continue
		}
		if hasCursor && !beforeCursor(p.CreatedAt, p.Seq, cursor) {
			continue
		}
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].Seq > rows[j].Seq
	})
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	return rows, hasMore, nil
}

func (s *MemoryStore) CreateForumComment(_ context.Context, c domain.ForumComment) (domain.ForumComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.comments[c.ID] = c
	return c, nil
}

func (s *MemoryStore) ListForumComments(_ context.Context, postID string) ([]domain.ForumComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ForumComment
	for _, c := range s.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SearchMessages(_ context.Context, q string, limit int) ([]domain.Message, error) {
	limit = ClampLimit(limit)
	q = strings.ToLower(q)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SearchForumPosts(_ context.Context, q string, limit int) ([]domain.ForumPost, error) {
	limit = ClampLimit(limit)
	q = strings.ToLower(q)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ForumPost
	for _, p := range s.posts {
		if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Body), q) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
