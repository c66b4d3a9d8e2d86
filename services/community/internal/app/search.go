package app

import (
	"context"
	"strings"

	"campfire/pkg/domain"
	"campfire/pkg/store"
)

const minSearchRunes = 2

// SearchResults groups message and forum hits for one query.
type SearchResults struct {
	Messages []domain.Message   `json:"messages"`
	Posts    []domain.ForumPost `json:"posts"`
}

// Search runs a substring search over messages and forum posts. Hits in
// channels above the member's role are filtered out, so search never
// leaks gated content.
func (a *App) Search(ctx context.Context, member domain.Member, query string, limit int) (SearchResults, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchRunes {
		return SearchResults{}, domain.E(domain.KindInvalidInput, "query too short")
	}
	limit = store.ClampLimit(limit)

	accessible, err := a.accessibleChannelSet(ctx, member)
	if err != nil {
		return SearchResults{}, err
	}

	messages, err := a.store.SearchMessages(ctx, query, limit)
	if err != nil {
		return SearchResults{}, err
	}
	posts, err := a.store.SearchForumPosts(ctx, query, limit)
	if err != nil {
		return SearchResults{}, err
	}

	results := SearchResults{}
	for _, m := range messages {
		if accessible[m.ChannelID] {
			results.Messages = append(results.Messages, m)
		}
	}
	for _, p := range posts {
		if accessible[p.ChannelID] {
			results.Posts = append(results.Posts, p)
		}
	}
	return results, nil
}

func (a *App) accessibleChannelSet(ctx context.Context, member domain.Member) (map[string]bool, error) {
	channels, err := a.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if domain.CanAccess(member.Role, ch.MinRole) {
			set[ch.ID] = true
		}
	}
	return set, nil
}
