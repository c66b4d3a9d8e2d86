package domain

import "time"

// ChannelType distinguishes linear chat channels from forum channels.
type ChannelType string

const (
	ChannelChat  ChannelType = "chat"
	ChannelForum ChannelType = "forum"
)

// NotificationType classifies why a notification was created.
type NotificationType string

const (
	NotifyMention      NotificationType = "mention"
	NotifyReply        NotificationType = "reply"
	NotifyReaction     NotificationType = "reaction"
	NotifyForumReply   NotificationType = "forum_reply"
	NotifyAnnouncement NotificationType = "announcement"
	NotifyReport       NotificationType = "report"
)

// MaxMessageRunes bounds message content length.
const MaxMessageRunes = 2000

// Channel is an administratively seeded chat or forum channel.
type Channel struct {
	ID        string      `json:"id"`
	Slug      string      `json:"slug"`
	Name      string      `json:"name"`
	Category  string      `json:"category"`
	Position  int         `json:"position"`
	Type      ChannelType `json:"type"`
	Readonly  bool        `json:"readonly"`
	MinRole   Role        `json:"minRole"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Member is created on first successful login from identity-provider claims.
type Member struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Role        Role      `json:"role"`
	Premium     bool      `json:"premium"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message is the unit of channel chat. Seq is a store-assigned monotonic
// sequence that breaks created-at ties under coarse clock resolution.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	ReplyToID string    `json:"replyToId,omitempty"`
	Edited    bool      `json:"edited"`
	Seq       int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reaction existence is the fact; (message, member, emoji) is unique.
type Reaction struct {
	MessageID string    `json:"messageId"`
	MemberID  string    `json:"memberId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionSummary is the per-message aggregate returned to readers.
type ReactionSummary struct {
	Emoji     string `json:"emoji"`
	Count     int    `json:"count"`
	ReactedBy bool   `json:"reactedByRequester"`
}

// ReadMarker is the per-member, per-channel last-seen watermark.
// Everything at or before LastReadAt counts as seen.
type ReadMarker struct {
	MemberID   string    `json:"memberId"`
	ChannelID  string    `json:"channelId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

// Notification records a side effect of someone else's action.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	SenderID    string           `json:"senderId"`
	Type        NotificationType `json:"type"`
	ChannelID   string           `json:"channelId,omitempty"`
	MessageID   string           `json:"messageId,omitempty"`
	PostID      string           `json:"postId,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// ForumPost is the simpler parallel entity for forum channels.
type ForumPost struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Seq       int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// ForumComment is a flat comment on a forum post.
type ForumComment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChannelOverview enriches a channel for the sidebar list view.
type ChannelOverview struct {
	Channel
	UnreadCount     int        `json:"unreadCount"`
	HasUnread       bool       `json:"hasUnread"`
	LatestMessageAt *time.Time `json:"latestMessageAt,omitempty"`
}
