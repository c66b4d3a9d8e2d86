package realtime

import "time"

// Op is the kind of change an event announces.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Entity names the changed record type.
type Entity string

const (
	EntityMessage      Entity = "message"
	EntityReaction     Entity = "reaction"
	EntityReadMarker   Entity = "read_marker"
	EntityNotification Entity = "notification"
	EntityForumPost    Entity = "forum_post"
	EntityForumComment Entity = "forum_comment"
	EntityTyping       Entity = "typing"
	EntityPresence     Entity = "presence"
)

// MemberStream is the hub key for one member's personal events, such as
// notifications, which have a recipient rather than a channel.
func MemberStream(memberID string) string {
	return "member:" + memberID
}

// ChangeEvent is a lightweight change announcement. It carries ids, not
// payloads: clients treat it as a hint to fetch fresh state over the
// regular read API, so a dropped or duplicated event is never fatal.
type ChangeEvent struct {
	Op        Op        `json:"op"`
	Entity    Entity    `json:"entity"`
	ChannelID string    `json:"channel_id,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	MemberID  string    `json:"member_id,omitempty"`
	At        time.Time `json:"at"`
}
