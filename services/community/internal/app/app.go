package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"campfire/internal/ratelimit"
	"campfire/internal/util"
	"campfire/pkg/domain"
	"campfire/pkg/notify"
	"campfire/pkg/realtime"
	"campfire/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	Hub      *realtime.Hub
	Notifier *notify.Dispatcher
	Limits   *ratelimit.Set
	Typing   *realtime.TypingTracker
	Presence *realtime.PresenceTracker
}

// App wires storage, access control, rate limiting, and realtime fan-out
// behind the operations the transport layer exposes.
type App struct {
	store    store.Store
	hub      *realtime.Hub
	notifier *notify.Dispatcher
	limits   *ratelimit.Set
	typing   *realtime.TypingTracker
	presence *realtime.PresenceTracker
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("realtime hub required")
	}
	if cfg.Limits == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	typing := cfg.Typing
	if typing == nil {
		typing = realtime.NewTypingTracker()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewDispatcher(dataStore, cfg.Hub)
	}
	return &App{
		store:    dataStore,
		hub:      cfg.Hub,
		notifier: notifier,
		limits:   cfg.Limits,
		typing:   typing,
		presence: cfg.Presence,
	}, nil
}

// Store exposes the data layer for startup seeding.
func (a *App) Store() store.Store { return a.store }

// EnsureMember upserts the member row from verified token claims. Role
// and premium changes made through the API are not overwritten here.
func (a *App) EnsureMember(ctx context.Context, m domain.Member) error {
	return a.store.UpsertMember(ctx, m)
}

// CurrentMember bootstraps the member from token claims and returns the
// stored row. Role and premium come from the store, not the token, so a
// promotion applies on the next request rather than at token refresh.
func (a *App) CurrentMember(ctx context.Context, claims domain.Member) (domain.Member, error) {
	if err := a.store.UpsertMember(ctx, claims); err != nil {
		return domain.Member{}, err
	}
	member, found, err := a.store.GetMember(ctx, claims.ID)
	if err != nil {
		return domain.Member{}, err
	}
	if !found {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return member, nil
}

// ChannelBySlug resolves a channel the member can access.
func (a *App) ChannelBySlug(ctx context.Context, member domain.Member, slug string) (domain.Channel, error) {
	ch, found, err := a.store.GetChannelBySlug(ctx, slug)
	if err != nil {
		return domain.Channel{}, err
	}
	if !found {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	if !domain.CanAccess(member.Role, ch.MinRole) {
		return domain.Channel{}, domain.ErrForbidden
	}
	return ch, nil
}

// authorizeChannel loads the channel and checks the member's role clears
// its floor. Gated channels stay visible in errors: membership of the
// community is the privacy boundary, not channel existence.
func (a *App) authorizeChannel(ctx context.Context, member domain.Member, channelID string) (domain.Channel, error) {
	ch, found, err := a.store.GetChannel(ctx, channelID)
	if err != nil {
		return domain.Channel{}, err
	}
	if !found {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	if !domain.CanAccess(member.Role, ch.MinRole) {
		return domain.Channel{}, domain.ErrForbidden
	}
	return ch, nil
}

// ChannelOverviews returns the channels the member can see, each with
// unread state and latest activity for the sidebar.
func (a *App) ChannelOverviews(ctx context.Context, member domain.Member) ([]domain.ChannelOverview, error) {
	channels, err := a.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	visible := channels[:0]
	for _, ch := range channels {
		if domain.CanAccess(member.Role, ch.MinRole) {
			visible = append(visible, ch)
		}
	}
	ids := make([]string, len(visible))
	for i, ch := range visible {
		ids[i] = ch.ID
	}

	var (
		unread map[string]int
		latest map[string]time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		unread, err = a.store.UnreadCounts(gctx, member.ID, ids)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = a.store.LatestMessageAt(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.ChannelOverview, 0, len(visible))
	for _, ch := range visible {
		ov := domain.ChannelOverview{
			Channel:     ch,
			UnreadCount: unread[ch.ID],
			HasUnread:   unread[ch.ID] > 0,
		}
		if at, ok := latest[ch.ID]; ok {
			t := at
			ov.LatestMessageAt = &t
		}
		out = append(out, ov)
	}
	return out, nil
}

// MessagePage is one page of channel history with reaction aggregates.
type MessagePage struct {
	Messages   []domain.Message                    `json:"messages"`
	Reactions  map[string][]domain.ReactionSummary `json:"reactions"`
	NextCursor string                              `json:"nextCursor,omitempty"`
	HasMore    bool                                `json:"hasMore"`
}

// ListMessages returns a page of channel history, newest first.
func (a *App) ListMessages(ctx context.Context, member domain.Member, channelID string, limit int, cursor string) (MessagePage, error) {
	if _, err := a.authorizeChannel(ctx, member, channelID); err != nil {
		return MessagePage{}, err
	}
	limit = store.ClampLimit(limit)
	messages, hasMore, err := a.store.ListMessages(ctx, channelID, limit, cursor)
	if err != nil {
		return MessagePage{}, err
	}
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	reactions, err := a.store.ReactionSummaries(ctx, ids, member.ID)
	if err != nil {
		return MessagePage{}, err
	}
	page := MessagePage{Messages: messages, Reactions: reactions, HasMore: hasMore}
	if hasMore && len(messages) > 0 {
		last := messages[len(messages)-1]
		page.NextCursor = store.EncodeCursor(store.Cursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}
	return page, nil
}

// SendMessage validates and persists a message, then fans out realtime
// and notification side effects.
func (a *App) SendMessage(ctx context.Context, member domain.Member, channelID, content, imageURL, replyToID string) (domain.Message, error) {
	if d := a.limits.Admit(ratelimit.ActionSendMessage, member.ID); !d.Allowed {
		return domain.Message{}, domain.RateLimited(d.RetryAfter)
	}
	ch, err := a.authorizeChannel(ctx, member, channelID)
	if err != nil {
		return domain.Message{}, err
	}
	if ch.Type != domain.ChannelChat {
		return domain.Message{}, domain.E(domain.KindInvalidInput, "channel does not accept chat messages")
	}
	if ch.Readonly {
		return domain.Message{}, domain.ErrReadonly
	}

	content = strings.TrimSpace(content)
	if content == "" && imageURL == "" {
		return domain.Message{}, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageRunes {
		return domain.Message{}, domain.ErrContentTooLong
	}
	if replyToID != "" {
		parent, found, err := a.store.GetMessage(ctx, replyToID)
		if err != nil {
			return domain.Message{}, err
		}
		if !found {
			return domain.Message{}, domain.ErrMessageNotFound
		}
		if parent.ChannelID != channelID {
			return domain.Message{}, domain.ErrCrossChannel
		}
	}

	msg, err := a.store.CreateMessage(ctx, domain.Message{
		ID:        util.NewID(),
		ChannelID: channelID,
		AuthorID:  member.ID,
		Content:   content,
		ImageURL:  imageURL,
		ReplyToID: replyToID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Message{}, err
	}

	a.typing.Stop(channelID, member.ID)
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpInsert, Entity: realtime.EntityMessage,
		ChannelID: channelID, EntityID: msg.ID, MemberID: member.ID,
	})
	a.notifier.MessageSent(msg)
	return msg, nil
}

// PostAnnouncement publishes a staff message into a channel and notifies
// every member. This is the one sanctioned write into a readonly channel;
// the regular send path rejects readonly channels for every role.
func (a *App) PostAnnouncement(ctx context.Context, member domain.Member, channelID, content string) (domain.Message, error) {
	if !domain.CanModerate(member.Role) {
		return domain.Message{}, domain.ErrForbidden
	}
	if d := a.limits.Admit(ratelimit.ActionSendMessage, member.ID); !d.Allowed {
		return domain.Message{}, domain.RateLimited(d.RetryAfter)
	}
	ch, err := a.authorizeChannel(ctx, member, channelID)
	if err != nil {
		return domain.Message{}, err
	}
	if ch.Type != domain.ChannelChat {
		return domain.Message{}, domain.E(domain.KindInvalidInput, "channel does not accept chat messages")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageRunes {
		return domain.Message{}, domain.ErrContentTooLong
	}

	msg, err := a.store.CreateMessage(ctx, domain.Message{
		ID:        util.NewID(),
		ChannelID: channelID,
		AuthorID:  member.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Message{}, err
	}
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpInsert, Entity: realtime.EntityMessage,
		ChannelID: channelID, EntityID: msg.ID, MemberID: member.ID,
	})
	a.notifier.Announcement(msg)
	return msg, nil
}

// EditMessage lets the author amend their own message.
func (a *App) EditMessage(ctx context.Context, member domain.Member, messageID, content string) (domain.Message, error) {
	msg, found, err := a.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if !found {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	if msg.AuthorID != member.ID {
		return domain.Message{}, domain.ErrForbidden
	}
	ch, err := a.authorizeChannel(ctx, member, msg.ChannelID)
	if err != nil {
		return domain.Message{}, err
	}
	if ch.Readonly {
		return domain.Message{}, domain.ErrReadonly
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageRunes {
		return domain.Message{}, domain.ErrContentTooLong
	}
	updated, err := a.store.UpdateMessageContent(ctx, messageID, content)
	if err != nil {
		return domain.Message{}, err
	}
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpUpdate, Entity: realtime.EntityMessage,
		ChannelID: updated.ChannelID, EntityID: updated.ID, MemberID: member.ID,
	})
	return updated, nil
}

// DeleteMessage removes a message. Authors delete their own; moderators
// delete anything. Reactions go with the message in the same transaction.
func (a *App) DeleteMessage(ctx context.Context, member domain.Member, messageID string) error {
	msg, found, err := a.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrMessageNotFound
	}
	if msg.AuthorID != member.ID && !domain.CanModerate(member.Role) {
		return domain.ErrForbidden
	}
	if err := a.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpDelete, Entity: realtime.EntityMessage,
		ChannelID: msg.ChannelID, EntityID: msg.ID, MemberID: member.ID,
	})
	return nil
}

// ToggleReaction flips the member's reaction on a message.
func (a *App) ToggleReaction(ctx context.Context, member domain.Member, messageID, emoji string) (bool, error) {
	if d := a.limits.Admit(ratelimit.ActionReaction, member.ID); !d.Allowed {
		return false, domain.RateLimited(d.RetryAfter)
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return false, domain.E(domain.KindInvalidInput, "emoji required")
	}
	msg, found, err := a.store.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, domain.ErrMessageNotFound
	}
	ch, err := a.authorizeChannel(ctx, member, msg.ChannelID)
	if err != nil {
		return false, err
	}
	if ch.Readonly {
		return false, domain.ErrReadonly
	}
	added, err := a.store.ToggleReaction(ctx, messageID, member.ID, emoji)
	if err != nil {
		return false, err
	}
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpUpdate, Entity: realtime.EntityReaction,
		ChannelID: msg.ChannelID, EntityID: msg.ID, MemberID: member.ID,
	})
	if added {
		a.notifier.ReactionAdded(messageID, member.ID, emoji)
	}
	return added, nil
}

// MarkRead advances the member's read watermark for the channel.
// Watermarks only move forward; a stale client cannot resurrect unread.
func (a *App) MarkRead(ctx context.Context, member domain.Member, channelID string, at time.Time) error {
	if _, err := a.authorizeChannel(ctx, member, channelID); err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if marker, found, err := a.store.GetReadMarker(ctx, member.ID, channelID); err != nil {
		return err
	} else if found && !at.After(marker.LastReadAt) {
		return nil
	}
	return a.store.MarkRead(ctx, member.ID, channelID, at)
}

// ReportMessage flags a message for moderator attention.
func (a *App) ReportMessage(ctx context.Context, member domain.Member, messageID string) error {
	if d := a.limits.Admit(ratelimit.ActionReport, member.ID); !d.Allowed {
		return domain.RateLimited(d.RetryAfter)
	}
	msg, found, err := a.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrMessageNotFound
	}
	if _, err := a.authorizeChannel(ctx, member, msg.ChannelID); err != nil {
		return err
	}
	a.notifier.MessageReported(msg, member.ID)
	return nil
}

// Notifications returns the member's notifications, newest first.
func (a *App) Notifications(ctx context.Context, member domain.Member, limit int) ([]domain.Notification, error) {
	return a.store.ListNotifications(ctx, member.ID, store.ClampLimit(limit))
}

// MarkNotificationsRead flips the read flag on the member's own
// notifications. IDs belonging to other members are silently skipped.
func (a *App) MarkNotificationsRead(ctx context.Context, member domain.Member, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return a.store.MarkNotificationsRead(ctx, member.ID, ids)
}

// Typing records a typing signal and announces it.
func (a *App) Typing(ctx context.Context, member domain.Member, channelID string) error {
	if _, err := a.authorizeChannel(ctx, member, channelID); err != nil {
		return err
	}
	a.typing.Touch(channelID, member.ID)
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpUpdate, Entity: realtime.EntityTyping,
		ChannelID: channelID, MemberID: member.ID,
	})
	return nil
}

// TypingSnapshot lists members currently typing in the channel.
func (a *App) TypingSnapshot(ctx context.Context, member domain.Member, channelID string) ([]string, error) {
	if _, err := a.authorizeChannel(ctx, member, channelID); err != nil {
		return nil, err
	}
	return a.typing.Snapshot(channelID), nil
}

// Heartbeat marks the member present in the channel.
func (a *App) Heartbeat(ctx context.Context, member domain.Member, channelID string) error {
	if _, err := a.authorizeChannel(ctx, member, channelID); err != nil {
		return err
	}
	if a.presence == nil {
		return nil
	}
	if err := a.presence.Heartbeat(ctx, channelID, member.ID); err != nil {
		return domain.Wrap(domain.KindUnavailable, "presence unavailable", err)
	}
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpUpdate, Entity: realtime.EntityPresence,
		ChannelID: channelID, MemberID: member.ID,
	})
	return nil
}

// PresenceSnapshot lists members currently online in the channel.
// Clients resync from this full set after every reconnect.
func (a *App) PresenceSnapshot(ctx context.Context, member domain.Member, channelID string) ([]string, error) {
	if _, err := a.authorizeChannel(ctx, member, channelID); err != nil {
		return nil, err
	}
	if a.presence == nil {
		return nil, nil
	}
	online, err := a.presence.Snapshot(ctx, channelID)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "presence unavailable", err)
	}
	return online, nil
}

// PromoteMember changes a member's role. Admin only.
func (a *App) PromoteMember(ctx context.Context, actor domain.Member, targetID string, role domain.Role) error {
	if !domain.CanAdminister(actor.Role) {
		return domain.ErrForbidden
	}
	if domain.RoleRank(role) < 0 {
		return domain.E(domain.KindInvalidInput, "unknown role")
	}
	return a.store.SetMemberRole(ctx, targetID, role)
}

// SetPremium records a member's premium entitlement.
func (a *App) SetPremium(ctx context.Context, memberID string, premium bool) error {
	return a.store.SetMemberPremium(ctx, memberID, premium)
}
