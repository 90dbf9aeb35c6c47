// README: Order aggregate, suggestion records, and the lifecycle state machine.
package order

import (
	"strings"
	"time"

	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "Pending"
	StatusRequested  Status = "Requested"
	StatusAccepted   Status = "Accepted"
	StatusAssigned   Status = "Assigned"
	StatusOnDelivery Status = "onDelivery"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

type FuelType string

const (
	FuelDiesel   FuelType = "Diesel"
	FuelPetrol   FuelType = "Petrol"
	FuelKerosene FuelType = "Kerosene"
)

func ParseFuelType(v string) (FuelType, bool) {
	switch f := FuelType(v); f {
	case FuelDiesel, FuelPetrol, FuelKerosene:
		return f, true
	}
	return "", false
}

type RouteKind string

const (
	RoutePrivate RouteKind = "private"
	RouteShared  RouteKind = "shared"
)

type Company struct {
	Name     string       `json:"name"`
	Location *types.Point `json:"location,omitempty"`
}

// StationRef is a destination copied onto the order at placement.
type StationRef struct {
	ID       types.ID    `json:"id"`
	Name     string      `json:"name"`
	District string      `json:"district"`
	Location types.Point `json:"location"`
}

type Order struct {
	ID            types.ID                `json:"id"`
	Number        string                  `json:"number"`
	CustomerID    types.ID                `json:"customer_id"`
	FuelType      FuelType                `json:"fuel_type"`
	Route         RouteKind               `json:"route"`
	Capacity      int64                   `json:"capacity"`
	Source        string                  `json:"source"`
	Depot         string                  `json:"depot"`
	District      string                  `json:"district"`
	Stations      []StationRef            `json:"stations"`
	Companies     []Company               `json:"companies"`
	Price         types.Money             `json:"price"`
	DistanceKm    float64                 `json:"distance_km"`
	DeliveryTime  *time.Time              `json:"delivery_time,omitempty"`
	Status        Status                  `json:"status"`
	StatusVersion int                     `json:"status_version"`
	Merged        bool                    `json:"merged"`
	SharedGroupID *types.ID               `json:"shared_group_id,omitempty"`
	VehicleID     *types.ID               `json:"vehicle_id,omitempty"`
	DriverID      *types.ID               `json:"driver_id,omitempty"`
	Compartments  []allocation.Assignment `json:"compartments,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	RequestedAt   *time.Time              `json:"requested_at,omitempty"`
	AcceptedAt    *time.Time              `json:"accepted_at,omitempty"`
	AssignedAt    *time.Time              `json:"assigned_at,omitempty"`
	TripStartedAt *time.Time              `json:"trip_started_at,omitempty"`
	TripEndedAt   *time.Time              `json:"trip_ended_at,omitempty"`
	CancelledAt   *time.Time              `json:"cancelled_at,omitempty"`
	CancelReason  *string                 `json:"cancel_reason,omitempty"`
}

// CompanyName is the primary company line item.
func (o Order) CompanyName() string {
	if len(o.Companies) == 0 {
		return ""
	}
	return o.Companies[0].Name
}

// CompanyLocation is the first geocoded company, used as the pickup point.
func (o Order) CompanyLocation() (types.Point, bool) {
	for _, c := range o.Companies {
		if c.Location != nil {
			return *c.Location, true
		}
	}
	return types.Point{}, false
}

func (o Order) StationName() string {
	if len(o.Stations) == 0 {
		return ""
	}
	return o.Stations[0].Name
}

// TripKey identifies the trip a driver and vehicle are bound to: the group for
// merged orders, else the order itself.
func (o Order) TripKey() types.ID {
	if o.SharedGroupID != nil {
		return *o.SharedGroupID
	}
	return o.ID
}

func (o Order) clone() Order {
	out := o
	out.Stations = append([]StationRef(nil), o.Stations...)
	out.Companies = make([]Company, len(o.Companies))
	for i, c := range o.Companies {
		out.Companies[i] = c
		if c.Location != nil {
			p := *c.Location
			out.Companies[i].Location = &p
		}
	}
	out.Compartments = append([]allocation.Assignment(nil), o.Compartments...)
	out.SharedGroupID = cloneID(o.SharedGroupID)
	out.VehicleID = cloneID(o.VehicleID)
	out.DriverID = cloneID(o.DriverID)
	return out
}

func cloneID(v *types.ID) *types.ID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

type SuggestionStatus string

const (
	SuggestionSuggested SuggestionStatus = "Suggested"
	SuggestionUsed      SuggestionStatus = "Used"
	SuggestionRejected  SuggestionStatus = "Rejected"
)

type Suggestion struct {
	ID          types.ID         `json:"id"`
	OrderID     types.ID         `json:"order_id"`
	VehicleID   types.ID         `json:"vehicle_id"`
	GroupID     *types.ID        `json:"group_id,omitempty"`
	Utilization float64          `json:"utilization"`
	Status      SuggestionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
}

// MatchFilter selects merge candidates for a shared order.
type MatchFilter struct {
	FuelType        FuelType
	Source          string
	Depot           string
	District        string
	Company         string
	ExcludeCustomer types.ID
}

// Key is the serialization key for concurrent placements with equal criteria.
// Names compare case-insensitively, so the key is lower-cased.
func (f MatchFilter) Key() string {
	parts := []string{string(f.FuelType), f.Source, f.Depot, f.District, f.Company}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

// AllowedTransitions represents the order state flow as code. Cancel is
// reachable from every pre-Assigned state.
var AllowedTransitions = map[Status][]Status{
	StatusNone:       {StatusPending},
	StatusPending:    {StatusRequested, StatusCancelled},
	StatusRequested:  {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusOnDelivery},
	StatusOnDelivery: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

var statusRank = map[Status]int{
	StatusPending:    1,
	StatusRequested:  2,
	StatusAccepted:   3,
	StatusAssigned:   4,
	StatusOnDelivery: 5,
	StatusCompleted:  6,
}

// Rank orders the forward lifecycle. Cancelled and unknown statuses rank 0.
func Rank(s Status) int {
	return statusRank[s]
}

// Terminal statuses accept no further transitions.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}
