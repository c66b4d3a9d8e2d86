package domain

import "strings"

// Role is the ordered member hierarchy. Comparisons go through RoleRank;
// nothing else in the codebase compares role strings directly.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var roleRanks = map[Role]int{
	RoleMember:    0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

// RoleRank returns the hierarchy rank of a role. Unknown roles rank below
// member so a malformed claim can never widen access.
func RoleRank(r Role) int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// CanAccess reports whether a member role meets a channel's access floor.
func CanAccess(memberRole, channelMinRole Role) bool {
	return RoleRank(memberRole) >= RoleRank(channelMinRole)
}

// CanModerate reports whether a role may delete other members' content.
func CanModerate(r Role) bool {
	return RoleRank(r) >= RoleRank(RoleModerator)
}

// CanAdminister reports whether a role may manage members and roles.
func CanAdminister(r Role) bool {
	return RoleRank(r) >= RoleRank(RoleAdmin)
}

// ParseRole normalizes a role claim string. Unknown input falls back to
// member, never to a privileged role.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleModerator:
		return RoleModerator
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleMember
	}
}
