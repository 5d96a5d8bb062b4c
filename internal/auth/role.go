package auth

import "strings"

// Role is an RBAC role carried in the token.
type Role string

const (
	// RoleViewer may read analysis results and exports.
	RoleViewer Role = "viewer"
	// RoleAnalyst may upload datasets and trigger external calls.
	RoleAnalyst Role = "analyst"
	// RoleAdmin may do everything.
	RoleAdmin Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:  1,
	RoleAnalyst: 2,
	RoleAdmin:   3,
}

// NormalizeRole parses a role name.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRank[role]; !ok {
		return "", false
	}
	return role, true
}

// Allows reports whether r satisfies the required role.
func (r Role) Allows(required Role) bool {
	return roleRank[r] >= roleRank[required] && roleRank[r] > 0
}
