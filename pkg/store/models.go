package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ChannelModel struct {
	ID        string `gorm:"primaryKey"`
	Slug      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	Category  string
	Position  int
	Type      string `gorm:"not null"`
	Readonly  bool
	MinRole   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type MemberModel struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string `gorm:"not null;index"`
	AvatarURL   string
	Role        string `gorm:"not null"`
	Premium     bool
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type MessageModel struct {
	ID        string `gorm:"primaryKey"`
	ChannelID string `gorm:"not null;index:idx_messages_channel_created,priority:1"`
	AuthorID  string `gorm:"not null;index"`
	Content   string `gorm:"type:text"`
	ImageURL  string
	ReplyToID *string
	Edited    bool
	Seq       int64     `gorm:"autoIncrement;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_channel_created,priority:2"`
}

type ReactionModel struct {
	MessageID string    `gorm:"primaryKey"`
	MemberID  string    `gorm:"primaryKey"`
	Emoji     string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

type ReadMarkerModel struct {
	MemberID   string    `gorm:"primaryKey"`
	ChannelID  string    `gorm:"primaryKey"`
	LastReadAt time.Time `gorm:"not null"`
}

type NotificationModel struct {
	ID          string `gorm:"primaryKey"`
	RecipientID string `gorm:"not null;index:idx_notifications_recipient_created,priority:1"`
	SenderID    string `gorm:"not null"`
	Type        string `gorm:"not null"`
	Refs        datatypes.JSON
	Read        bool
	CreatedAt   time.Time `gorm:"not null;index:idx_notifications_recipient_created,priority:2"`
}

type ForumPostModel struct {
	ID        string `gorm:"primaryKey"`
	ChannelID string `gorm:"not null;index:idx_posts_channel_created,priority:1"`
	AuthorID  string `gorm:"not null"`
	Title     string `gorm:"not null"`
	Body      string `gorm:"type:text"`
	Seq       int64     `gorm:"autoIncrement;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null;index:idx_posts_channel_created,priority:2"`
}

type ForumCommentModel struct {
	ID        string `gorm:"primaryKey"`
	PostID    string `gorm:"not null;index"`
	AuthorID  string `gorm:"not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
