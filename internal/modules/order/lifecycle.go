// README: Truck-owner, driver, and cancel transitions; each one moves the whole cohort or nothing.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

type AcceptCommand struct {
	Actor     policy.Actor
	OrderID   types.ID
	VehicleID *types.ID
}

type AssignCommand struct {
	Actor    policy.Actor
	OrderID  types.ID
	DriverID types.ID
}

type TripCommand struct {
	Actor   policy.Actor
	OrderID types.ID
}

type CancelCommand struct {
	Actor   policy.Actor
	OrderID types.ID
	Reason  string
}

// Accept moves every order of the cohort from Requested to Accepted.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Order, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapAcceptOrder); err != nil {
		return nil, err
	}
	var (
		cohort  []*Order
		vehicle *fleet.Vehicle
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		cohort, err = s.loadCohort(ctx, cmd.OrderID, StatusAccepted)
		if err != nil {
			return err
		}
		vehicleID := resolveVehicle(cmd.VehicleID, cohort)
		if vehicleID == "" {
			return fmt.Errorf("%w: no vehicle supplied or suggested", ErrValidation)
		}
		vehicle, err = s.ownedVehicle(ctx, cmd.Actor, vehicleID)
		if err != nil {
			return err
		}
		if !vehicle.Selectable() {
			return fmt.Errorf("%w: vehicle %s is %s", ErrInvalidState, vehicle.Identity, vehicle.Status)
		}
		if _, err := s.store.FindSuggestion(ctx, cohort[0].ID, vehicleID, SuggestionSuggested); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: vehicle %s was not suggested for %s", ErrInvalidState, vehicle.Identity, cohort[0].Number)
			}
			return err
		}

		plans, err := s.replan(cohort, vehicle)
		if err != nil {
			return err
		}
		for _, o := range cohort {
			p := Patch{VehicleID: &vehicleID, Compartments: plans[o.ID]}
			if err := s.transition(ctx, o, StatusAccepted, p, cmd.Actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.Describe(ctx, notify.KindOrderAccepted, cohort, vehicle, nil))
	return pick(cohort, cmd.OrderID), nil
}

// replan keeps the stored compartments when the vehicle is unchanged and
// otherwise allocates the cohort to the new vehicle. A merged cohort that no
// longer fits is an ErrAllocationOverflow.
func (s *Service) replan(cohort []*Order, v *fleet.Vehicle) (map[types.ID][]allocation.Assignment, error) {
	out := make(map[types.ID][]allocation.Assignment, len(cohort))
	same := true
	for _, o := range cohort {
		if o.VehicleID == nil || *o.VehicleID != v.ID {
			same = false
		}
		out[o.ID] = o.Compartments
	}
	if same {
		return out, nil
	}
	demands := make([]allocation.Demand, len(cohort))
	for i, o := range cohort {
		demands[i] = allocation.Demand{CustomerID: o.ID, Liters: o.Capacity}
	}
	plan := allocation.Allocate(demands, v.Compartments, s.mode)
	if cohort[0].Merged && !plan.Complete() {
		return nil, fmt.Errorf("%w: vehicle %s leaves %dL unallocated", ErrAllocationOverflow, v.Identity, plan.UnmetLiters())
	}
	for _, o := range cohort {
		out[o.ID] = plan.For(o.ID)
	}
	return out, nil
}

// AssignDriver binds a driver and the accepted vehicle to the cohort.
func (s *Service) AssignDriver(ctx context.Context, cmd AssignCommand) (*Order, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapAssignDriver); err != nil {
		return nil, err
	}
	var (
		cohort  []*Order
		vehicle *fleet.Vehicle
		driver  *fleet.Driver
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		cohort, err = s.loadCohort(ctx, cmd.OrderID, StatusAssigned)
		if err != nil {
			return err
		}
		lead := cohort[0]
		if lead.VehicleID == nil {
			return fmt.Errorf("%w: %s has no vehicle", ErrInvalidState, lead.Number)
		}
		vehicle, err = s.ownedVehicle(ctx, cmd.Actor, *lead.VehicleID)
		if err != nil {
			return err
		}
		driver, err = s.fleet.Driver(ctx, cmd.DriverID)
		if err != nil {
			return err
		}
		if driver.OwnerID != cmd.Actor.ID {
			return fmt.Errorf("%w: driver belongs to another owner", policy.ErrForbidden)
		}

		used := make([]*Suggestion, 0, len(cohort))
		for _, o := range cohort {
			sg, err := s.store.FindSuggestion(ctx, o.ID, vehicle.ID, SuggestionSuggested)
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: no open suggestion for %s on %s", ErrInvalidState, o.Number, vehicle.Identity)
			}
			if err != nil {
				return err
			}
			used = append(used, sg)
		}

		if err := s.fleet.BindForTrip(ctx, driver.ID, vehicle.ID, lead.TripKey()); err != nil {
			if errors.Is(err, fleet.ErrDriverUnavailable) || errors.Is(err, fleet.ErrVehicleUnavailable) {
				return fmt.Errorf("%w: %w", ErrInvalidState, err)
			}
			return err
		}
		driverID := driver.ID
		for _, o := range cohort {
			if err := s.transition(ctx, o, StatusAssigned, Patch{DriverID: &driverID}, cmd.Actor); err != nil {
				return err
			}
		}
		for _, sg := range used {
			if err := s.settleSuggestions(ctx, sg.OrderID, sg.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.Describe(ctx, notify.KindDriverAssigned, cohort, vehicle, driver))
	return pick(cohort, cmd.OrderID), nil
}

// settleSuggestions marks the chosen suggestion Used and rejects the rest of
// the order's open ones. usedID may be empty to reject them all.
func (s *Service) settleSuggestions(ctx context.Context, orderID, usedID types.ID) error {
	all, err := s.store.ListSuggestions(ctx, orderID)
	if err != nil {
		return err
	}
	for _, sg := range all {
		if sg.Status != SuggestionSuggested {
			continue
		}
		to := SuggestionRejected
		if sg.ID == usedID {
			to = SuggestionUsed
		}
		ok, err := s.store.UpdateSuggestionStatus(ctx, sg.ID, SuggestionSuggested, to)
		if err != nil {
			return err
		}
		if !ok && to == SuggestionUsed {
			return fmt.Errorf("%w: suggestion %s was already settled", ErrConflict, sg.ID)
		}
	}
	return nil
}

// StartTrip is driver-initiated and moves the cohort to onDelivery.
func (s *Service) StartTrip(ctx context.Context, cmd TripCommand) (*Order, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapStartTrip); err != nil {
		return nil, err
	}
	var cohort []*Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		cohort, err = s.loadDriverCohort(ctx, cmd, StatusOnDelivery)
		if err != nil {
			return err
		}
		for _, o := range cohort {
			if err := s.transition(ctx, o, StatusOnDelivery, Patch{}, cmd.Actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.Describe(ctx, notify.KindTripStarted, cohort, s.vehicleOf(ctx, cohort[0]), nil))
	return pick(cohort, cmd.OrderID), nil
}

// EndTrip completes the cohort and releases the driver and vehicle.
func (s *Service) EndTrip(ctx context.Context, cmd TripCommand) (*Order, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapEndTrip); err != nil {
		return nil, err
	}
	var cohort []*Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		cohort, err = s.loadDriverCohort(ctx, cmd, StatusCompleted)
		if err != nil {
			return err
		}
		for _, o := range cohort {
			if err := s.transition(ctx, o, StatusCompleted, Patch{}, cmd.Actor); err != nil {
				return err
			}
		}
		lead := cohort[0]
		if lead.VehicleID == nil {
			return fmt.Errorf("%w: %s has no vehicle", ErrInvalidState, lead.Number)
		}
		return s.fleet.ReleaseTrip(ctx, *lead.DriverID, *lead.VehicleID, lead.TripKey())
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.Describe(ctx, notify.KindTripCompleted, cohort, s.vehicleOf(ctx, cohort[0]), nil))
	return pick(cohort, cmd.OrderID), nil
}

// Cancel cancels the order, and its whole group if merged, before Assigned.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapCancelOrder); err != nil {
		return nil, err
	}
	reason := cmd.Reason
	if reason == "" {
		reason = string(cmd.Actor.Role) + "_cancel"
	}
	var cohort []*Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.store.Get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if cmd.Actor.Role == policy.RoleCustomer && o.CustomerID != cmd.Actor.ID {
			return fmt.Errorf("%w: order belongs to another customer", policy.ErrForbidden)
		}
		cohort, err = s.loadCohort(ctx, cmd.OrderID, StatusCancelled)
		if err != nil {
			return err
		}
		for _, o := range cohort {
			if err := s.transition(ctx, o, StatusCancelled, Patch{CancelReason: &reason}, cmd.Actor); err != nil {
				return err
			}
			if err := s.settleSuggestions(ctx, o.ID, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.Describe(ctx, notify.KindOrderCancelled, cohort, s.vehicleOf(ctx, cohort[0]), nil))
	return pick(cohort, cmd.OrderID), nil
}

// loadCohort loads the order's cohort and checks every member may move to next.
func (s *Service) loadCohort(ctx context.Context, id types.ID, next Status) ([]*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cohort, err := s.Cohort(ctx, o)
	if err != nil {
		return nil, err
	}
	for _, m := range cohort {
		if !CanTransition(m.Status, next) {
			return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, m.Number, m.Status)
		}
	}
	return cohort, nil
}

func (s *Service) loadDriverCohort(ctx context.Context, cmd TripCommand, next Status) ([]*Order, error) {
	cohort, err := s.loadCohort(ctx, cmd.OrderID, next)
	if err != nil {
		return nil, err
	}
	for _, o := range cohort {
		if o.DriverID == nil || *o.DriverID != cmd.Actor.ID {
			return nil, fmt.Errorf("%w: %s is not assigned to this driver", policy.ErrForbidden, o.Number)
		}
	}
	return cohort, nil
}

func (s *Service) ownedVehicle(ctx context.Context, actor policy.Actor, id types.ID) (*fleet.Vehicle, error) {
	v, err := s.fleet.Vehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.OwnerID != actor.ID {
		return nil, fmt.Errorf("%w: vehicle belongs to another owner", policy.ErrForbidden)
	}
	return v, nil
}

func (s *Service) vehicleOf(ctx context.Context, o *Order) *fleet.Vehicle {
	if o.VehicleID == nil {
		return nil
	}
	v, err := s.fleet.Vehicle(ctx, *o.VehicleID)
	if err != nil {
		log.Printf("order: vehicle %s for %s: %v", *o.VehicleID, o.Number, err)
		return nil
	}
	return v
}

// resolveVehicle prefers the supplied vehicle, else any member's vehicle reference.
func resolveVehicle(supplied *types.ID, cohort []*Order) types.ID {
	if supplied != nil && *supplied != "" {
		return *supplied
	}
	for _, o := range cohort {
		if o.VehicleID != nil {
			return *o.VehicleID
		}
	}
	return ""
}

func pick(cohort []*Order, id types.ID) *Order {
	for _, o := range cohort {
		if o.ID == id {
			return o
		}
	}
	return cohort[0]
}
