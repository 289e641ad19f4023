package engine

import (
	"fmt"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"
)

type action string

const (
	actionReadAmenities  action = "read amenities"
	actionManageAmenity  action = "manage amenities"
	actionCreateBooking  action = "create bookings"
	actionReviewBooking  action = "review bookings"
	actionCancelBooking  action = "cancel bookings"
	actionReadBookings   action = "read bookings"
	actionIssuePass      action = "issue passes"
	actionVerifyPass     action = "verify passes"
	actionCancelPass     action = "cancel passes"
	actionReadPasses     action = "read passes"
	actionReadAuditTrail action = "read audit trails"
)

var (
	admins        = []models.Role{models.RoleBuildingAdmin, models.RoleSuperAdmin}
	residentAdmin = []models.Role{models.RoleResident, models.RoleBuildingAdmin, models.RoleSuperAdmin}
	everyone      = []models.Role{models.RoleResident, models.RoleBuildingAdmin, models.RoleSuperAdmin, models.RoleWatchman}
)

var permissions = map[action][]models.Role{
	actionReadAmenities:  everyone,
	actionManageAmenity:  admins,
	actionCreateBooking:  {models.RoleResident},
	actionReviewBooking:  admins,
	actionCancelBooking:  residentAdmin,
	actionReadBookings:   residentAdmin,
	actionIssuePass:      residentAdmin,
	actionVerifyPass:     {models.RoleBuildingAdmin, models.RoleSuperAdmin, models.RoleWatchman},
	actionCancelPass:     residentAdmin,
	actionReadPasses:     everyone,
	actionReadAuditTrail: admins,
}

// authorize checks that caller's role may perform act. It never looks at
// stored state.
func authorize(caller models.Caller, act action) error {
	if caller.UserID == "" {
		return fmt.Errorf("%w: missing caller identity", store.ErrForbidden)
	}
	for _, role := range permissions[act] {
		if caller.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not %s", store.ErrForbidden, caller.Role, act)
}

// authorizeIn additionally scopes caller to buildingID. Super admins act in
// every building.
func authorizeIn(caller models.Caller, act action, buildingID string) error {
	if err := authorize(caller, act); err != nil {
		return err
	}
	return inBuilding(caller, buildingID)
}

func inBuilding(caller models.Caller, buildingID string) error {
	if caller.Role == models.RoleSuperAdmin {
		return nil
	}
	if caller.BuildingID == "" || caller.BuildingID != buildingID {
		return fmt.Errorf("%w: building access denied", store.ErrForbidden)
	}
	return nil
}

// callerBuilding resolves the building an operation targets. Building-scoped
// callers default to their own building and may not name another one; super
// admins must name it.
func callerBuilding(caller models.Caller, requested string) (string, error) {
	if requested == "" {
		requested = caller.BuildingID
	}
	if requested == "" {
		return "", store.Validation("building_id is required")
	}
	if !isUUID(requested) {
		return "", store.Validation("building_id must be a UUID")
	}
	if err := inBuilding(caller, requested); err != nil {
		return "", err
	}
	return requested, nil
}
