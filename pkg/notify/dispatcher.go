// Package notify turns channel activity into per-member notifications.
// Dispatch runs off the request path: a send never fails because a
// notification could not be written.
package notify

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"campfire/internal/util"
	"campfire/pkg/domain"
	"campfire/pkg/queue"
	"campfire/pkg/realtime"
)

const (
	dispatchTimeout = 10 * time.Second
	fanOutLimit     = 8
)

var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_.-]+)`)

// Store is the slice of the data layer the dispatcher needs.
type Store interface {
	GetMessage(ctx context.Context, id string) (domain.Message, bool, error)
	GetForumPost(ctx context.Context, id string) (domain.ForumPost, bool, error)
	GetMemberByDisplayName(ctx context.Context, name string) (domain.Member, bool, error)
	ListMemberIDs(ctx context.Context) ([]string, error)
	ListModeratorIDs(ctx context.Context) ([]string, error)
	CreateNotification(ctx context.Context, n domain.Notification) error
}

// EmailEnqueuer queues an offline email delivery for a notification.
type EmailEnqueuer interface {
	Enqueue(ctx context.Context, notificationID, recipientID string) (queue.DeliveryJob, error)
}

// Dispatcher fans notifications out to recipients and announces each one
// on the realtime hub so online clients refresh immediately.
type Dispatcher struct {
	store  Store
	hub    *realtime.Hub
	emails EmailEnqueuer
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(store Store, hub *realtime.Hub) *Dispatcher {
	return &Dispatcher{store: store, hub: hub}
}

// EnableEmail turns on queued email delivery for created notifications.
func (d *Dispatcher) EnableEmail(q EmailEnqueuer) {
	d.emails = q
}

// MessageSent handles mention and reply notifications for a new message.
// It detaches from the request context: the caller has already committed
// the message and must not block on notification writes.
func (d *Dispatcher) MessageSent(msg domain.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		d.dispatchMessage(ctx, msg)
	}()
}

// ReactionAdded notifies the message author about a new reaction.
func (d *Dispatcher) ReactionAdded(messageID, reactorID, emoji string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		msg, found, err := d.store.GetMessage(ctx, messageID)
		if err != nil || !found {
			slog.Warn("reaction notification skipped", "err", err, "message_id", messageID)
			return
		}
		if msg.AuthorID == reactorID {
			return
		}
		d.create(ctx, domain.Notification{
			RecipientID: msg.AuthorID,
			SenderID:    reactorID,
			Type:        domain.NotifyReaction,
			ChannelID:   msg.ChannelID,
			MessageID:   msg.ID,
		})
	}()
}

// CommentAdded notifies the post author about a new forum comment.
func (d *Dispatcher) CommentAdded(comment domain.ForumComment) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		post, found, err := d.store.GetForumPost(ctx, comment.PostID)
		if err != nil || !found {
			slog.Warn("forum reply notification skipped", "err", err, "post_id", comment.PostID)
			return
		}
		if post.AuthorID == comment.AuthorID {
			return
		}
		d.create(ctx, domain.Notification{
			RecipientID: post.AuthorID,
			SenderID:    comment.AuthorID,
			Type:        domain.NotifyForumReply,
			ChannelID:   post.ChannelID,
			PostID:      post.ID,
		})
	}()
}

// Announcement notifies every member about a staff announcement post,
// except the author.
func (d *Dispatcher) Announcement(msg domain.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		memberIDs, err := d.store.ListMemberIDs(ctx)
		if err != nil {
			slog.Warn("announcement fan-out skipped", "err", err, "message_id", msg.ID)
			return
		}
		d.fanOut(ctx, memberIDs, msg.AuthorID, domain.Notification{
			SenderID:  msg.AuthorID,
			Type:      domain.NotifyAnnouncement,
			ChannelID: msg.ChannelID,
			MessageID: msg.ID,
		})
	}()
}

// MessageReported notifies every moderator about a reported message.
func (d *Dispatcher) MessageReported(msg domain.Message, reporterID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		moderatorIDs, err := d.store.ListModeratorIDs(ctx)
		if err != nil {
			slog.Warn("report fan-out skipped", "err", err, "message_id", msg.ID)
			return
		}
		d.fanOut(ctx, moderatorIDs, reporterID, domain.Notification{
			SenderID:  reporterID,
			Type:      domain.NotifyReport,
			ChannelID: msg.ChannelID,
			MessageID: msg.ID,
		})
	}()
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, msg domain.Message) {
	notified := map[string]bool{msg.AuthorID: true}

	if msg.ReplyToID != "" {
		parent, found, err := d.store.GetMessage(ctx, msg.ReplyToID)
		if err == nil && found && !notified[parent.AuthorID] {
			notified[parent.AuthorID] = true
			d.create(ctx, domain.Notification{
				RecipientID: parent.AuthorID,
				SenderID:    msg.AuthorID,
				Type:        domain.NotifyReply,
				ChannelID:   msg.ChannelID,
				MessageID:   msg.ID,
			})
		}
	}

	var recipients []string
	for _, name := range ParseMentions(msg.Content) {
		member, found, err := d.store.GetMemberByDisplayName(ctx, name)
		if err != nil || !found || notified[member.ID] {
			continue
		}
		notified[member.ID] = true
		recipients = append(recipients, member.ID)
	}
	d.fanOut(ctx, recipients, msg.AuthorID, domain.Notification{
		SenderID:  msg.AuthorID,
		Type:      domain.NotifyMention,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
	})
}

func (d *Dispatcher) fanOut(ctx context.Context, recipients []string, senderID string, template domain.Notification) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, recipientID := range recipients {
		if recipientID == senderID {
			continue
		}
		n := template
		n.RecipientID = recipientID
		g.Go(func() error {
			d.create(ctx, n)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) create(ctx context.Context, n domain.Notification) {
	if n.ID == "" {
		n.ID = util.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		slog.Warn("notification write failed", "err", err, "type", n.Type, "recipient", n.RecipientID)
		return
	}
	if d.hub != nil {
		d.hub.Publish(ctx, realtime.ChangeEvent{
			Op:        realtime.OpInsert,
			Entity:    realtime.EntityNotification,
			ChannelID: realtime.MemberStream(n.RecipientID),
			EntityID:  n.ID,
			MemberID:  n.RecipientID,
		})
	}
	if d.emails != nil {
		if _, err := d.emails.Enqueue(ctx, n.ID, n.RecipientID); err != nil {
			slog.Warn("email delivery enqueue failed", "err", err, "notification_id", n.ID)
		}
	}
}

// ParseMentions extracts unique @name tokens in order of appearance.
func ParseMentions(content string) []string {
	seen := map[string]bool{}
	var names []string
	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		name := strings.TrimRight(match[1], ".-")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
