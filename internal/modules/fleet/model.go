// README: Vehicle and driver aggregates with their companion status machines.
package fleet

import (
	"time"

	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/types"
)

type VehicleStatus string

const (
	VehicleSubmitted VehicleStatus = "Submitted"
	VehicleApproved  VehicleStatus = "Approved"
	VehicleRejected  VehicleStatus = "Rejected"
	VehicleAvailable VehicleStatus = "Available"
	VehicleBusy      VehicleStatus = "Busy"
)

type Vehicle struct {
	ID               types.ID                 `json:"id"`
	OwnerID          types.ID                 `json:"owner_id"`
	Identity         string                   `json:"identity"`
	PlateNumber      string                   `json:"plate_number"`
	DeviceID         string                   `json:"device_id,omitempty"`
	TankCapacity     int64                    `json:"tank_capacity"`
	Compartments     []allocation.Compartment `json:"compartments"`
	CompartmentCount int                      `json:"compartment_count"`
	Status           VehicleStatus            `json:"status"`
	BoundOrder       *types.ID                `json:"bound_order,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// Selectable vehicles may be proposed by the fit engine.
func (v Vehicle) Selectable() bool {
	return v.Status == VehicleApproved || v.Status == VehicleAvailable
}

// TrackerID is the key the vehicle's positions are recorded under: the GPS
// device id, or the vehicle id when no device is registered.
func (v Vehicle) TrackerID() string {
	if v.DeviceID != "" {
		return v.DeviceID
	}
	return string(v.ID)
}

func (v Vehicle) CompartmentTotal() int64 {
	return allocation.TotalCapacity(v.Compartments)
}

func (v Vehicle) clone() Vehicle {
	out := v
	out.Compartments = append([]allocation.Compartment(nil), v.Compartments...)
	if v.BoundOrder != nil {
		b := *v.BoundOrder
		out.BoundOrder = &b
	}
	return out
}

var vehicleTransitions = map[VehicleStatus][]VehicleStatus{
	VehicleSubmitted: {VehicleApproved, VehicleRejected},
	VehicleApproved:  {VehicleBusy},
	VehicleAvailable: {VehicleBusy},
	VehicleBusy:      {VehicleApproved},
}

func CanTransitionVehicle(from, to VehicleStatus) bool {
	for _, s := range vehicleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type DriverStatus string

const (
	DriverUnverified DriverStatus = "unverified"
	DriverAvailable  DriverStatus = "available"
	DriverBusy       DriverStatus = "busy"
	// DriverCompleted is reported transiently on trip end; the stored status returns to available.
	DriverCompleted DriverStatus = "completed"
)

type Driver struct {
	ID            types.ID     `json:"id"`
	OwnerID       types.ID     `json:"owner_id"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Phone         string       `json:"phone"`
	LicenseNumber string       `json:"license_number"`
	DeviceToken   string       `json:"-"`
	Status        DriverStatus `json:"status"`
	AssignedOrder *types.ID    `json:"assigned_order,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (d Driver) FullName() string {
	if d.LastName == "" {
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}

func (d Driver) clone() Driver {
	out := d
	if d.AssignedOrder != nil {
		a := *d.AssignedOrder
		out.AssignedOrder = &a
	}
	return out
}

type VehicleFilter struct {
	OwnerID  types.ID
	Statuses []VehicleStatus
}

func (f VehicleFilter) matches(v Vehicle) bool {
	if f.OwnerID != "" && v.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if v.Status == s {
			return true
		}
	}
	return false
}
