package models

import "strings"

type Role string

const (
	RoleResident      Role = "resident"
	RoleBuildingAdmin Role = "building_admin"
	RoleSuperAdmin    Role = "super_admin"
	RoleWatchman      Role = "watchman"
)

// ParseRole accepts only the four known roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(raw)) {
	case RoleResident:
		return RoleResident, true
	case RoleBuildingAdmin:
		return RoleBuildingAdmin, true
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	case RoleWatchman:
		return RoleWatchman, true
	default:
		return "", false
	}
}

// Caller is the authenticated identity handed over by the auth collaborator.
type Caller struct {
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	BuildingID  string `json:"building_id,omitempty"`
	ApartmentID string `json:"apartment_id,omitempty"`
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleBuildingAdmin || c.Role == RoleSuperAdmin
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
