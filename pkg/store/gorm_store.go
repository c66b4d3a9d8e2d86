package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"campfire/pkg/domain"
)

const migrateLockID int64 = 52895289

// GormStore implements Store using GORM + Postgres. Correctness under
// concurrent writers relies on row-level atomicity (on-conflict upserts,
// insert constraints), never on in-process locks.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&ChannelModel{},
			&MemberModel{},
			&MessageModel{},
			&ReactionModel{},
			&ReadMarkerModel{},
			&NotificationModel{},
			&ForumPostModel{},
			&ForumCommentModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SeedChannels inserts or refreshes administratively defined channels.
func (s *GormStore) SeedChannels(ctx context.Context, channels []domain.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	models := make([]ChannelModel, 0, len(channels))
	for _, c := range channels {
		models = append(models, channelToModel(c))
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category", "position", "type", "readonly", "min_role"}),
	}).Create(&models).Error
}

// ListChannels returns channels in sidebar order.
func (s *GormStore) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	var models []ChannelModel
	if err := s.db.WithContext(ctx).Order("position ASC").Order("slug ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Channel, 0, len(models))
	for _, m := range models {
		out = append(out, channelFromModel(m))
	}
	return out, nil
}

// GetChannel returns a channel by ID.
func (s *GormStore) GetChannel(ctx context.Context, id string) (domain.Channel, bool, error) {
	var model ChannelModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Channel{}, false, nil
		}
		return domain.Channel{}, false, err
	}
	return channelFromModel(model), true, nil
}

// GetChannelBySlug returns a channel by its human slug.
func (s *GormStore) GetChannelBySlug(ctx context.Context, slug string) (domain.Channel, bool, error) {
	var model ChannelModel
	if err := s.db.WithContext(ctx).First(&model, "slug = ?", slug).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Channel{}, false, nil
		}
		return domain.Channel{}, false, err
	}
	return channelFromModel(model), true, nil
}

// LatestMessageAt returns the newest message timestamp per channel in one
// grouped query.
func (s *GormStore) LatestMessageAt(ctx context.Context, channelIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(channelIDs))
	if len(channelIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ChannelID string
		Latest    time.Time
	}
	err := s.db.WithContext(ctx).
		Model(&MessageModel{}).
		Select("channel_id, MAX(created_at) AS latest").
		Where("channel_id IN ?", channelIDs).
		Group("channel_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ChannelID] = row.Latest
	}
	return out, nil
}

// UpsertMember registers a member on first login and refreshes profile
// fields after that. Role and entitlement are never touched here; those
// change only through SetMemberRole / SetMemberPremium.
func (s *GormStore) UpsertMember(ctx context.Context, m domain.Member) error {
	model := memberToModel(m)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_url", "updated_at"}),
	}).Create(&model).Error
}

// GetMember returns a member by ID.
func (s *GormStore) GetMember(ctx context.Context, id string) (domain.Member, bool, error) {
	var model MemberModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, err
	}
	return memberFromModel(model), true, nil
}

// GetMemberByDisplayName resolves a mention target.
func (s *GormStore) GetMemberByDisplayName(ctx context.Context, name string) (domain.Member, bool, error) {
	var model MemberModel
	if err := s.db.WithContext(ctx).First(&model, "display_name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, err
	}
	return memberFromModel(model), true, nil
}

// ListMemberIDs returns every known member id.
func (s *GormStore) ListMemberIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&MemberModel{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListModeratorIDs returns members who can handle reports.
func (s *GormStore) ListModeratorIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&MemberModel{}).
		Where("role IN ?", []string{string(domain.RoleModerator), string(domain.RoleAdmin)}).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SetMemberRole applies an administrative role change.
func (s *GormStore) SetMemberRole(ctx context.Context, id string, role domain.Role) error {
	res := s.db.WithContext(ctx).Model(&MemberModel{}).Where("id = ?", id).Updates(map[string]any{
		"role":       string(role),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// SetMemberPremium applies an entitlement change from the billing webhook.
func (s *GormStore) SetMemberPremium(ctx context.Context, id string, premium bool) error {
	res := s.db.WithContext(ctx).Model(&MemberModel{}).Where("id = ?", id).Updates(map[string]any{
		"premium":    premium,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// CreateMessage inserts a message and returns the authoritative row with
// the store-assigned sequence.
func (s *GormStore) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	model := messageToModel(msg)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Message{}, err
	}
	return messageFromModel(model), nil
}

// GetMessage returns a message by ID.
func (s *GormStore) GetMessage(ctx context.Context, id string) (domain.Message, bool, error) {
	var model MessageModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

// ListMessages pages a channel newest first with keyset pagination on
// (created_at, seq). Concurrent inserts can never duplicate or skip rows.
func (s *GormStore) ListMessages(ctx context.Context, channelID string, limit int, cursorToken string) ([]domain.Message, bool, error) {
	limit = ClampLimit(limit)
	cursor, hasCursor, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, false, err
	}
	tx := s.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if hasCursor {
		tx = tx.Where("(created_at, seq) < (?, ?)", cursor.CreatedAt, cursor.Seq)
	}
	var models []MessageModel
	if err := tx.Order("created_at DESC").Order("seq DESC").Limit(limit + 1).Find(&models).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, hasMore, nil
}

// UpdateMessageContent edits a message body and flags it as edited.
func (s *GormStore) UpdateMessageContent(ctx context.Context, id, content string) (domain.Message, error) {
	res := s.db.WithContext(ctx).Model(&MessageModel{}).Where("id = ?", id).Updates(map[string]any{
		"content": content,
		"edited":  true,
	})
	if res.Error != nil {
		return domain.Message{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	msg, _, err := s.GetMessage(ctx, id)
	return msg, err
}

// DeleteMessage hard-deletes a message and its reactions in one
// transaction. Notifications referencing the message stay behind and are
// treated as pointing at an absent row.
func (s *GormStore) DeleteMessage(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReactionModel{}, "message_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&MessageModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrMessageNotFound
		}
		return nil
	})
}

// ToggleReaction inserts the (message, member, emoji) row, or removes it if
// it already exists. The insert uses on-conflict-do-nothing so two racing
// toggles converge instead of losing an update to read-then-write.
func (s *GormStore) ToggleReaction(ctx context.Context, messageID, memberID, emoji string) (bool, error) {
	model := ReactionModel{
		MessageID: messageID,
		MemberID:  memberID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND member_id = ? AND emoji = ?", messageID, memberID, emoji).
		Delete(&ReactionModel{}).Error
	return false, err
}

// ReactionSummaries aggregates reactions for a set of messages from one
// raw-row query; the requester flag comes from the same rows, not a second
// query.
func (s *GormStore) ReactionSummaries(ctx context.Context, messageIDs []string, requesterID string) (map[string][]domain.ReactionSummary, error) {
	out := make(map[string][]domain.ReactionSummary, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var rows []ReactionModel
	if err := s.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return summarizeReactions(rows, requesterID), nil
}

// MarkRead upserts the member's watermark for a channel.
func (s *GormStore) MarkRead(ctx context.Context, memberID, channelID string, at time.Time) error {
	model := ReadMarkerModel{MemberID: memberID, ChannelID: channelID, LastReadAt: at.UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
	}).Create(&model).Error
}

// GetReadMarker returns the watermark for one member+channel pair.
func (s *GormStore) GetReadMarker(ctx context.Context, memberID, channelID string) (domain.ReadMarker, bool, error) {
	var model ReadMarkerModel
	err := s.db.WithContext(ctx).
		First(&model, "member_id = ? AND channel_id = ?", memberID, channelID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ReadMarker{}, false, nil
		}
		return domain.ReadMarker{}, false, err
	}
	return domain.ReadMarker{
		MemberID:   model.MemberID,
		ChannelID:  model.ChannelID,
		LastReadAt: model.LastReadAt,
	}, true, nil
}

// UnreadCounts computes unread counts for all requested channels in one
// aggregate query. A channel the member never visited counts every message.
func (s *GormStore) UnreadCounts(ctx context.Context, memberID string, channelIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(channelIDs))
	if len(channelIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ChannelID string
		Cnt       int
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT m.channel_id, COUNT(*) AS cnt
		FROM message_models m
		LEFT JOIN read_marker_models r
			ON r.channel_id = m.channel_id AND r.member_id = ?
		WHERE m.channel_id IN ?
			AND (r.last_read_at IS NULL OR m.created_at > r.last_read_at)
		GROUP BY m.channel_id
	`, memberID, channelIDs).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ChannelID] = row.Cnt
	}
	return out, nil
}

// CreateNotification records a notification row.
func (s *GormStore) CreateNotification(ctx context.Context, n domain.Notification) error {
	model, err := notificationToModel(n)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListNotifications returns the recipient's newest notifications.
func (s *GormStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	limit = ClampLimit(limit)
	var models []NotificationModel
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		out = append(out, notificationFromModel(m))
	}
	return out, nil
}

// MarkNotificationsRead flips the read flag, scoped to the owner in the
// filter itself so client-supplied ids cannot touch other members' rows.
func (s *GormStore) MarkNotificationsRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("recipient_id = ? AND id IN ?", recipientID, ids).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// CreateForumPost inserts a forum post.
func (s *GormStore) CreateForumPost(ctx context.Context, p domain.ForumPost) (domain.ForumPost, error) {
	model := forumPostToModel(p)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.ForumPost{}, err
	}
	return forumPostFromModel(model), nil
}

// GetForumPost returns a forum post by ID.
func (s *GormStore) GetForumPost(ctx context.Context, id string) (domain.ForumPost, bool, error) {
	var model ForumPostModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ForumPost{}, false, nil
		}
		return domain.ForumPost{}, false, err
	}
	return forumPostFromModel(model), true, nil
}

// ListForumPosts pages forum posts with the same keyset contract as
// messages.
func (s *GormStore) ListForumPosts(ctx context.Context, channelID string, limit int, cursorToken string) ([]domain.ForumPost, bool, error) {
	limit = ClampLimit(limit)
	cursor, hasCursor, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, false, err
	}
	tx := s.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if hasCursor {
		tx = tx.Where("(created_at, seq) < (?, ?)", cursor.CreatedAt, cursor.Seq)
	}
	var models []ForumPostModel
	if err := tx.Order("created_at DESC").Order("seq DESC").Limit(limit + 1).Find(&models).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}
	posts := make([]domain.ForumPost, 0, len(models))
	for _, m := range models {
		posts = append(posts, forumPostFromModel(m))
	}
	return posts, hasMore, nil
}

// CreateForumComment inserts a flat comment.
func (s *GormStore) CreateForumComment(ctx context.Context, c domain.ForumComment) (domain.ForumComment, error) {
	model := forumCommentToModel(c)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.ForumComment{}, err
	}
	return forumCommentFromModel(model), nil
}

// ListForumComments returns a post's comments oldest first.
func (s *GormStore) ListForumComments(ctx context.Context, postID string) ([]domain.ForumComment, error) {
	var models []ForumCommentModel
	if err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ForumComment, 0, len(models))
	for _, m := range models {
		out = append(out, forumCommentFromModel(m))
	}
	return out, nil
}

// SearchMessages finds messages containing the query substring.
func (s *GormStore) SearchMessages(ctx context.Context, q string, limit int) ([]domain.Message, error) {
	limit = ClampLimit(limit)
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("content ILIKE ?", "%"+escapeLike(q)+"%").
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(models))
	for _, m := range models {
		out = append(out, messageFromModel(m))
	}
	return out, nil
}

// SearchForumPosts finds posts whose title or body contains the query.
func (s *GormStore) SearchForumPosts(ctx context.Context, q string, limit int) ([]domain.ForumPost, error) {
	limit = ClampLimit(limit)
	pattern := "%" + escapeLike(q) + "%"
	var models []ForumPostModel
	if err := s.db.WithContext(ctx).
		Where("title ILIKE ? OR body ILIKE ?", pattern, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ForumPost, 0, len(models))
	for _, m := range models {
		out = append(out, forumPostFromModel(m))
	}
	return out, nil
}

func escapeLike(q string) string {
	q = strings.ReplaceAll(q, `\`, `\\`)
	q = strings.ReplaceAll(q, "%", `\%`)
	return strings.ReplaceAll(q, "_", `\_`)
}

// summarizeReactions folds raw rows into per-message, per-emoji tallies.
// Emoji order follows first reaction time.
func summarizeReactions(rows []ReactionModel, requesterID string) map[string][]domain.ReactionSummary {
	type key struct{ messageID, emoji string }
	counts := make(map[key]*domain.ReactionSummary)
	order := make(map[string][]string)
	out := make(map[string][]domain.ReactionSummary)
	for _, row := range rows {
		k := key{row.MessageID, row.Emoji}
		entry, ok := counts[k]
		if !ok {
			entry = &domain.ReactionSummary{Emoji: row.Emoji}
			counts[k] = entry
			order[row.MessageID] = append(order[row.MessageID], row.Emoji)
		}
		entry.Count++
		if row.MemberID == requesterID {
			entry.ReactedBy = true
		}
	}
	for messageID, emojis := range order {
		for _, emoji := range emojis {
			out[messageID] = append(out[messageID], *counts[key{messageID, emoji}])
		}
	}
	return out
}

func channelToModel(c domain.Channel) ChannelModel {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return ChannelModel{
		ID:        c.ID,
		Slug:      c.Slug,
		Name:      c.Name,
		Category:  c.Category,
		Position:  c.Position,
		Type:      string(c.Type),
		Readonly:  c.Readonly,
		MinRole:   string(c.MinRole),
		CreatedAt: createdAt,
	}
}

func channelFromModel(m ChannelModel) domain.Channel {
	return domain.Channel{
		ID:        m.ID,
		Slug:      m.Slug,
		Name:      m.Name,
		Category:  m.Category,
		Position:  m.Position,
		Type:      domain.ChannelType(m.Type),
		Readonly:  m.Readonly,
		MinRole:   domain.ParseRole(m.MinRole),
		CreatedAt: m.CreatedAt,
	}
}

func memberToModel(m domain.Member) MemberModel {
	return MemberModel{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		Role:        string(m.Role),
		Premium:     m.Premium,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func memberFromModel(m MemberModel) domain.Member {
	return domain.Member{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		Role:        domain.ParseRole(m.Role),
		Premium:     m.Premium,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	var replyTo *string
	if strings.TrimSpace(msg.ReplyToID) != "" {
		value := strings.TrimSpace(msg.ReplyToID)
		replyTo = &value
	}
	return MessageModel{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		ImageURL:  msg.ImageURL,
		ReplyToID: replyTo,
		Edited:    msg.Edited,
		Seq:       msg.Seq,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	replyTo := ""
	if m.ReplyToID != nil {
		replyTo = *m.ReplyToID
	}
	return domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		ReplyToID: replyTo,
		Edited:    m.Edited,
		Seq:       m.Seq,
		CreatedAt: m.CreatedAt,
	}
}

type notificationRefs struct {
	ChannelID string `json:"channelId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	PostID    string `json:"postId,omitempty"`
}

func notificationToModel(n domain.Notification) (NotificationModel, error) {
	refs, err := json.Marshal(notificationRefs{
		ChannelID: n.ChannelID,
		MessageID: n.MessageID,
		PostID:    n.PostID,
	})
	if err != nil {
		return NotificationModel{}, err
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        string(n.Type),
		Refs:        refs,
		Read:        n.Read,
		CreatedAt:   createdAt,
	}, nil
}

func notificationFromModel(m NotificationModel) domain.Notification {
	var refs notificationRefs
	if len(m.Refs) > 0 {
		_ = json.Unmarshal(m.Refs, &refs)
	}
	return domain.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		SenderID:    m.SenderID,
		Type:        domain.NotificationType(m.Type),
		ChannelID:   refs.ChannelID,
		MessageID:   refs.MessageID,
		PostID:      refs.PostID,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt,
	}
}

func forumPostToModel(p domain.ForumPost) ForumPostModel {
	return ForumPostModel{
		ID:        p.ID,
		ChannelID: p.ChannelID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Body:      p.Body,
		Seq:       p.Seq,
		CreatedAt: p.CreatedAt,
	}
}

func forumPostFromModel(m ForumPostModel) domain.ForumPost {
	return domain.ForumPost{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.AuthorID,
		Title:     m.Title,
		Body:      m.Body,
		Seq:       m.Seq,
		CreatedAt: m.CreatedAt,
	}
}

func forumCommentToModel(c domain.ForumComment) ForumCommentModel {
	return ForumCommentModel{
		ID:        c.ID,
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
	}
}

func forumCommentFromModel(m ForumCommentModel) domain.ForumComment {
	return domain.ForumComment{
		ID:        m.ID,
		PostID:    m.PostID,
		AuthorID:  m.AuthorID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
