package authz

import "strings"

const (
	RoleAuditor  = 30
	RoleReviewer = 40
	RoleAdmin    = 50
)

func IsReadOnly(roleID int) bool {
	return roleID == RoleAuditor
}

func RoleName(roleID int) string {
	switch roleID {
	case RoleAuditor:
		return "auditor"
	case RoleReviewer:
		return "reviewer"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// ParseRole maps a role name to its id; ok is false for unknown names.
func ParseRole(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "auditor":
		return RoleAuditor, true
	case "reviewer":
		return RoleReviewer, true
	case "admin":
		return RoleAdmin, true
	}
	return 0, false
}
