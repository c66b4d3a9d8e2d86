package app

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"campfire/internal/ratelimit"
	"campfire/internal/util"
	"campfire/pkg/domain"
	"campfire/pkg/realtime"
	"campfire/pkg/store"
)

const maxPostTitleRunes = 200

// ForumPage is one page of forum posts, newest first.
type ForumPage struct {
	Posts      []domain.ForumPost `json:"posts"`
	NextCursor string             `json:"nextCursor,omitempty"`
	HasMore    bool               `json:"hasMore"`
}

// PostThread is one post with its flat comment list.
type PostThread struct {
	Post     domain.ForumPost      `json:"post"`
	Comments []domain.ForumComment `json:"comments"`
}

// CreateForumPost opens a new thread in a forum channel.
func (a *App) CreateForumPost(ctx context.Context, member domain.Member, channelID, title, body string) (domain.ForumPost, error) {
	if d := a.limits.Admit(ratelimit.ActionForumPost, member.ID); !d.Allowed {
		return domain.ForumPost{}, domain.RateLimited(d.RetryAfter)
	}
	ch, err := a.authorizeChannel(ctx, member, channelID)
	if err != nil {
		return domain.ForumPost{}, err
	}
	if ch.Type != domain.ChannelForum {
		return domain.ForumPost{}, domain.E(domain.KindInvalidInput, "channel does not accept forum posts")
	}
	if ch.Readonly {
		return domain.ForumPost{}, domain.ErrReadonly
	}
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" || body == "" {
		return domain.ForumPost{}, domain.E(domain.KindInvalidInput, "post needs a title and a body")
	}
	if utf8.RuneCountInString(title) > maxPostTitleRunes {
		return domain.ForumPost{}, domain.E(domain.KindInvalidInput, "title exceeds the length limit")
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageRunes {
		return domain.ForumPost{}, domain.ErrContentTooLong
	}

	post, err := a.store.CreateForumPost(ctx, domain.ForumPost{
		ID:        util.NewID(),
		ChannelID: channelID,
		AuthorID:  member.ID,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.ForumPost{}, err
	}
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpInsert, Entity: realtime.EntityForumPost,
		ChannelID: channelID, EntityID: post.ID, MemberID: member.ID,
	})
	return post, nil
}

// ListForumPosts returns a page of threads in a forum channel.
func (a *App) ListForumPosts(ctx context.Context, member domain.Member, channelID string, limit int, cursor string) (ForumPage, error) {
	if _, err := a.authorizeChannel(ctx, member, channelID); err != nil {
		return ForumPage{}, err
	}
	limit = store.ClampLimit(limit)
	posts, hasMore, err := a.store.ListForumPosts(ctx, channelID, limit, cursor)
	if err != nil {
		return ForumPage{}, err
	}
	page := ForumPage{Posts: posts, HasMore: hasMore}
	if hasMore && len(posts) > 0 {
		last := posts[len(posts)-1]
		page.NextCursor = store.EncodeCursor(store.Cursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}
	return page, nil
}

// GetPostThread returns one post with all its comments.
func (a *App) GetPostThread(ctx context.Context, member domain.Member, postID string) (PostThread, error) {
	post, found, err := a.store.GetForumPost(ctx, postID)
	if err != nil {
		return PostThread{}, err
	}
	if !found {
		return PostThread{}, domain.ErrPostNotFound
	}
	if _, err := a.authorizeChannel(ctx, member, post.ChannelID); err != nil {
		return PostThread{}, err
	}
	comments, err := a.store.ListForumComments(ctx, postID)
	if err != nil {
		return PostThread{}, err
	}
	return PostThread{Post: post, Comments: comments}, nil
}

// CreateForumComment adds a flat comment to a post.
func (a *App) CreateForumComment(ctx context.Context, member domain.Member, postID, body string) (domain.ForumComment, error) {
	if d := a.limits.Admit(ratelimit.ActionSendMessage, member.ID); !d.Allowed {
		return domain.ForumComment{}, domain.RateLimited(d.RetryAfter)
	}
	post, found, err := a.store.GetForumPost(ctx, postID)
	if err != nil {
		return domain.ForumComment{}, err
	}
	if !found {
		return domain.ForumComment{}, domain.ErrPostNotFound
	}
	ch, err := a.authorizeChannel(ctx, member, post.ChannelID)
	if err != nil {
		return domain.ForumComment{}, err
	}
	if ch.Readonly {
		return domain.ForumComment{}, domain.ErrReadonly
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.ForumComment{}, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageRunes {
		return domain.ForumComment{}, domain.ErrContentTooLong
	}

	comment, err := a.store.CreateForumComment(ctx, domain.ForumComment{
		ID:        util.NewID(),
		PostID:    postID,
		AuthorID:  member.ID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.ForumComment{}, err
	}
	a.hub.Publish(ctx, realtime.ChangeEvent{
		Op: realtime.OpInsert, Entity: realtime.EntityForumComment,
		ChannelID: post.ChannelID, EntityID: comment.ID, MemberID: member.ID,
	})
	a.notifier.CommentAdded(comment)
	return comment, nil
}
