// README: Placement requests and outcomes for private and shared orders.
package matching

import (
	"time"

	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

// Outcome is the business result of a placement. Only OutcomePlaced and
// OutcomeMerged move the order out of Pending.
type Outcome string

const (
	OutcomePlaced            Outcome = "placed"
	OutcomeMerged            Outcome = "merged"
	OutcomeWaitingForMatch   Outcome = "waiting_for_match"
	OutcomeWaitingForVehicle Outcome = "waiting_for_vehicle"
	OutcomeNoVehicleFit      Outcome = "no_vehicle_fit"
)

type PlaceCommand struct {
	Actor    policy.Actor
	FuelType string
	Capacity int64
	Depot    string
	Source   string
	Company  string
	// Station is the station name: one of the customer's own stations for a
	// private order, any station in District for a shared one.
	Station      string
	District     string
	Price        types.Money
	DistanceKm   float64
	DeliveryTime *time.Time
}

type Placement struct {
	Order   *order.Order `json:"order,omitempty"`
	Outcome Outcome      `json:"outcome"`
	// Cohort lists every order of a merged group, the new one included.
	Cohort        []*order.Order      `json:"cohort,omitempty"`
	GroupID       *types.ID           `json:"group_id,omitempty"`
	Vehicle       *fleet.Vehicle      `json:"vehicle,omitempty"`
	Band          fleet.Band          `json:"band,omitempty"`
	Utilization   float64             `json:"utilization,omitempty"`
	Plan          *allocation.Plan    `json:"plan,omitempty"`
	TotalCapacity int64               `json:"total_capacity,omitempty"`
	Hint          *fleet.CapacityHint `json:"hint,omitempty"`
}

const (
	// lockWait bounds how long a placement waits for another placement with
	// the same criteria.
	lockWait = 5 * time.Second
	// lockRetry is the polling interval while the key is held elsewhere.
	lockRetry = 50 * time.Millisecond
	// lockKeyPrefix namespaces matching-key locks in Redis.
	lockKeyPrefix = "matching:lock:"
)
