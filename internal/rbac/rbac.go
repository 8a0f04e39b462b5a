// Package rbac holds the role model. Selah only distinguishes readers
// (members journaling their own devotions) from content administrators.
package rbac

type Role string
type Action string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionJournal Action = "journal"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionJournal
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
