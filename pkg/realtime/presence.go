package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 60 * time.Second

// PresenceTracker records which members are online in a channel.
// Each heartbeat refreshes a per-member TTL key, so a crashed client
// ages out on its own without any explicit leave.
type PresenceTracker struct {
	rdb    *redis.Client
	prefix string
}

// NewPresenceTracker creates a Redis-backed presence tracker.
func NewPresenceTracker(rdb *redis.Client, prefix string) (*PresenceTracker, error) {
	if rdb == nil {
		return nil, fmt.Errorf("presence tracker requires a redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "campfire:presence"
	}
	return &PresenceTracker{rdb: rdb, prefix: prefix}, nil
}

// Heartbeat marks the member online in the channel for the TTL window.
func (p *PresenceTracker) Heartbeat(ctx context.Context, channelID, memberID string) error {
	return p.rdb.Set(ctx, p.key(channelID, memberID), "1", presenceTTL).Err()
}

// Leave removes the member's presence immediately.
func (p *PresenceTracker) Leave(ctx context.Context, channelID, memberID string) error {
	return p.rdb.Del(ctx, p.key(channelID, memberID)).Err()
}

// Snapshot returns every member currently online in the channel. Clients
// resync from the full set after reconnecting instead of replaying
// join/leave deltas.
func (p *PresenceTracker) Snapshot(ctx context.Context, channelID string) ([]string, error) {
	pattern := p.key(channelID, "*")
	var members []string
	iter := p.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	base := p.key(channelID, "")
	for iter.Next(ctx) {
		members = append(members, strings.TrimPrefix(iter.Val(), base))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence keys: %w", err)
	}
	return members, nil
}

func (p *PresenceTracker) key(channelID, memberID string) string {
	return p.prefix + ":" + channelID + ":" + memberID
}
