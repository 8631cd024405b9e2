package common

// Membership roles within a community. Admins and co-admins can manage
// events, intents and moderation for their community.
const (
	RoleAdmin   = "admin"
	RoleCoAdmin = "co_admin"
	RoleMember  = "member"
)

// IsRoleElevated returns whether the role can perform community management
// actions.
func IsRoleElevated(role string) bool {
	return role == RoleAdmin || role == RoleCoAdmin
}
