package store

import (
	"context"
	"time"

	"campfire/pkg/domain"
)

const (
	// DefaultPageSize applies when a list request omits limit.
	DefaultPageSize = 30
	// MaxPageSize caps any single page.
	MaxPageSize = 100
)

// ClampLimit normalizes a requested page size into [1, MaxPageSize].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// Store defines persistence for channels, members, messages, reactions,
// read markers, notifications, and forum content. The relational backend is
// the single writer of record; callers never cache row existence across
// requests.
type Store interface {
	// channels
	SeedChannels(ctx context.Context, channels []domain.Channel) error
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	GetChannel(ctx context.Context, id string) (domain.Channel, bool, error)
	GetChannelBySlug(ctx context.Context, slug string) (domain.Channel, bool, error)
	LatestMessageAt(ctx context.Context, channelIDs []string) (map[string]time.Time, error)

	// members
	UpsertMember(ctx context.Context, m domain.Member) error
	GetMember(ctx context.Context, id string) (domain.Member, bool, error)
	GetMemberByDisplayName(ctx context.Context, name string) (domain.Member, bool, error)
	ListMemberIDs(ctx context.Context) ([]string, error)
	ListModeratorIDs(ctx context.Context) ([]string, error)
	SetMemberRole(ctx context.Context, id string, role domain.Role) error
	SetMemberPremium(ctx context.Context, id string, premium bool) error

	// messages
	CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	GetMessage(ctx context.Context, id string) (domain.Message, bool, error)
	ListMessages(ctx context.Context, channelID string, limit int, cursor string) ([]domain.Message, bool, error)
	UpdateMessageContent(ctx context.Context, id, content string) (domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// reactions
	ToggleReaction(ctx context.Context, messageID, memberID, emoji string) (added bool, err error)
	ReactionSummaries(ctx context.Context, messageIDs []string, requesterID string) (map[string][]domain.ReactionSummary, error)

	// read markers
	MarkRead(ctx context.Context, memberID, channelID string, at time.Time) error
	GetReadMarker(ctx context.Context, memberID, channelID string) (domain.ReadMarker, bool, error)
	UnreadCounts(ctx context.Context, memberID string, channelIDs []string) (map[string]int, error)

	// notifications
	CreateNotification(ctx context.Context, n domain.Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	MarkNotificationsRead(ctx context.Context, recipientID string, ids []string) (int64, error)

	// forum
	CreateForumPost(ctx context.Context, p domain.ForumPost) (domain.ForumPost, error)
	GetForumPost(ctx context.Context, id string) (domain.ForumPost, bool, error)
	ListForumPosts(ctx context.Context, channelID string, limit int, cursor string) ([]domain.ForumPost, bool, error)
	CreateForumComment(ctx context.Context, c domain.ForumComment) (domain.ForumComment, error)
	ListForumComments(ctx context.Context, postID string) ([]domain.ForumComment, error)

	// search
	SearchMessages(ctx context.Context, q string, limit int) ([]domain.Message, error)
	SearchForumPosts(ctx context.Context, q string, limit int) ([]domain.ForumPost, error)
}
