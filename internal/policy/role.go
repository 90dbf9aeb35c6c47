// README: Capability-tagged roles and the single authorization check used by every lifecycle entry point.
package policy

import (
	"errors"
	"fmt"

	"fuelhaul/internal/types"
)

var ErrForbidden = errors.New("forbidden")

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTruckOwner Role = "truck_owner"
	RoleDriver     Role = "driver"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	// RoleSystem is used by background dispatchers.
	RoleSystem Role = "system"
)

type Capability string

const (
	CapPlaceOrder      Capability = "order.place"
	CapCancelOrder     Capability = "order.cancel"
	CapViewOrder       Capability = "order.view"
	CapAcceptOrder     Capability = "order.accept"
	CapAssignDriver    Capability = "order.assign"
	CapStartTrip       Capability = "trip.start"
	CapEndTrip         Capability = "trip.end"
	CapRegisterVehicle Capability = "vehicle.register"
	CapReviewVehicle   Capability = "vehicle.review"
	CapReportPosition  Capability = "vehicle.position"
	CapManageDrivers   Capability = "driver.manage"
	CapVerifyDriver    Capability = "driver.verify"
	CapManageStations  Capability = "station.manage"
	CapReadMessages    Capability = "message.read"
)

var roleCapabilities = map[Role][]Capability{
	RoleCustomer: {
		CapPlaceOrder, CapCancelOrder, CapViewOrder, CapManageStations, CapReadMessages,
	},
	RoleTruckOwner: {
		CapViewOrder, CapAcceptOrder, CapAssignDriver, CapRegisterVehicle, CapReportPosition,
		CapManageDrivers, CapReadMessages,
	},
	RoleDriver: {
		CapViewOrder, CapStartTrip, CapEndTrip, CapReadMessages,
	},
	RoleStaff: {
		CapCancelOrder, CapViewOrder, CapReviewVehicle, CapVerifyDriver, CapReadMessages,
	},
	RoleAdmin: {
		CapCancelOrder, CapViewOrder, CapReviewVehicle, CapVerifyDriver, CapReadMessages,
		CapManageDrivers,
	},
	RoleSystem: {
		CapViewOrder, CapReportPosition,
	},
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   types.ID
	Role Role
}

func System() Actor {
	return Actor{ID: "system", Role: RoleSystem}
}

func ParseRole(v string) (Role, bool) {
	r := Role(v)
	_, ok := roleCapabilities[r]
	return r, ok
}

func (r Role) Can(c Capability) bool {
	for _, have := range roleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// Authorize reports whether the actor may exercise capability c.
func Authorize(a Actor, c Capability) error {
	if a.ID == "" {
		return fmt.Errorf("%w: anonymous caller", ErrForbidden)
	}
	if !a.Role.Can(c) {
		return fmt.Errorf("%w: role %q lacks %s", ErrForbidden, a.Role, c)
	}
	return nil
}
