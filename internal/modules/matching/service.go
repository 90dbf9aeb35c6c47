// README: Matching service places private and shared orders: vehicle fit, partner search, merge, and follow-up notices.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"fuelhaul/internal/config"
	"fuelhaul/internal/infra"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/catalog"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/location"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/modules/reminder"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

type Orders interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.Order, error)
	Propose(ctx context.Context, cmd order.ProposeCommand) (*order.Order, error)
	Merge(ctx context.Context, cmd order.MergeCommand) ([]*order.Order, error)
	MergeCandidates(ctx context.Context, f order.MatchFilter) ([]*order.Order, error)
	Find(ctx context.Context, id types.ID) (*order.Order, error)
	Describe(ctx context.Context, kind notify.Kind, cohort []*order.Order, v *fleet.Vehicle, d *fleet.Driver) notify.Event
}

type Fleet interface {
	SelectableVehicles(ctx context.Context) ([]fleet.Vehicle, error)
	Vehicle(ctx context.Context, id types.ID) (*fleet.Vehicle, error)
}

type Catalog interface {
	ResolveCompany(ctx context.Context, depot, source, company string) (catalog.DepotName, catalog.Company, error)
	CustomerStation(ctx context.Context, customerID types.ID, name string) (*catalog.Station, error)
	StationInDistrict(ctx context.Context, name, district string) (*catalog.Station, error)
}

type Positions interface {
	Nearby(ctx context.Context, center types.Point, radiusKm float64) ([]location.Position, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, kind reminder.Kind, orderID types.ID, dueAt time.Time) error
}

type Directory interface {
	Contact(ctx context.Context, id types.ID) (account.Contact, error)
}

type Notifier interface {
	Notify(ctx context.Context, e notify.Event)
}

type Deps struct {
	Orders    Orders
	Fleet     Fleet
	Catalog   Catalog
	Positions Positions
	Reminders Scheduler
	Contacts  Directory
	Notifier  Notifier
	Locker    KeyLocker
	Tx        infra.TxManager
	Config    config.MatchingConfig
}

type Service struct {
	orders    Orders
	fleet     Fleet
	catalog   Catalog
	positions Positions
	reminders Scheduler
	contacts  Directory
	notifier  Notifier
	locker    KeyLocker
	tx        infra.TxManager
	cfg       config.MatchingConfig
}

var _ reminder.Handler = (*Service)(nil)

func NewService(d Deps) *Service {
	if d.Locker == nil {
		d.Locker = NewLocalLocker()
	}
	return &Service{
		orders:    d.Orders,
		fleet:     d.Fleet,
		catalog:   d.Catalog,
		positions: d.Positions,
		reminders: d.Reminders,
		contacts:  d.Contacts,
		notifier:  d.Notifier,
		locker:    d.Locker,
		tx:        d.Tx,
		cfg:       d.Config,
	}
}

// PlacePrivate creates a private order and proposes the best-fitting vehicle
// in one transaction. When no vehicle fits, no order is created and the
// placement carries a capacity hint.
func (s *Service) PlacePrivate(ctx context.Context, cmd PlaceCommand) (*Placement, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapPlaceOrder); err != nil {
		return nil, err
	}
	fuel, err := validatePlace(cmd, order.RoutePrivate)
	if err != nil {
		return nil, err
	}
	depot, company, err := s.catalog.ResolveCompany(ctx, cmd.Depot, cmd.Source, cmd.Company)
	if err != nil {
		return nil, err
	}
	st, err := s.catalog.CustomerStation(ctx, cmd.Actor.ID, cmd.Station)
	if err != nil {
		return nil, err
	}

	pool, err := s.fleet.SelectableVehicles(ctx)
	if err != nil {
		return nil, err
	}
	sel := fleet.SelectVehicles(pool, cmd.Capacity)
	best, ok := sel.Best()
	if !ok {
		return &Placement{Outcome: OutcomeNoVehicleFit, TotalCapacity: cmd.Capacity, Hint: sel.Hint}, nil
	}

	var (
		o    *order.Order
		plan allocation.Plan
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		created, err := s.orders.Create(ctx, s.createCommand(cmd, fuel, order.RoutePrivate, depot, company, st))
		if err != nil {
			return err
		}
		plan = allocation.Allocate([]allocation.Demand{{CustomerID: created.ID, Liters: created.Capacity}}, best.Vehicle.Compartments, s.mode())
		o, err = s.orders.Propose(ctx, order.ProposeCommand{
			OrderID:      created.ID,
			Vehicle:      order.Candidate{VehicleID: best.Vehicle.ID, Utilization: best.Utilization},
			Compartments: plan.For(created.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	v := best.Vehicle
	s.notify(ctx, s.orders.Describe(ctx, notify.KindPrivateSuggested, []*order.Order{o}, &v, nil))
	s.schedule(ctx, reminder.KindPrivateUnaccepted, o.ID, s.cfg.PrivateWait)
	return &Placement{
		Order:         o,
		Outcome:       OutcomePlaced,
		Vehicle:       &v,
		Band:          best.Band,
		Utilization:   best.Utilization,
		Plan:          &plan,
		TotalCapacity: o.Capacity,
	}, nil
}

// PlaceShared creates a shared order and tries to merge it with the most
// recent waiting order that has the same criteria. Placements with equal
// criteria are serialized by the key locker; the conditional status writes in
// Merge still reject any order claimed by a concurrent group.
func (s *Service) PlaceShared(ctx context.Context, cmd PlaceCommand) (*Placement, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapPlaceOrder); err != nil {
		return nil, err
	}
	fuel, err := validatePlace(cmd, order.RouteShared)
	if err != nil {
		return nil, err
	}
	depot, company, err := s.catalog.ResolveCompany(ctx, cmd.Depot, cmd.Source, cmd.Company)
	if err != nil {
		return nil, err
	}
	st, err := s.catalog.StationInDistrict(ctx, cmd.Station, cmd.District)
	if err != nil {
		return nil, err
	}

	filter := order.MatchFilter{
		FuelType: fuel,
		Source:   strings.TrimSpace(cmd.Source),
		Depot:    string(depot),
		District: st.District,
		Company:  company.Name,
	}
	p, err := s.placeSharedLocked(ctx, filter, s.createCommand(cmd, fuel, order.RouteShared, depot, company, st))
	if err != nil {
		return nil, err
	}

	switch p.Outcome {
	case OutcomeMerged:
		s.notify(ctx, s.orders.Describe(ctx, notify.KindGroupMerged, p.Cohort, p.Vehicle, nil))
	case OutcomeWaitingForVehicle:
		s.notify(ctx, s.orders.Describe(ctx, notify.KindWaitingForVehicle, p.Cohort, nil, nil))
		s.schedule(ctx, reminder.KindSharedMatchWait, p.Order.ID, s.cfg.SharedWait)
	case OutcomeWaitingForMatch:
		s.schedule(ctx, reminder.KindSharedMatchWait, p.Order.ID, s.cfg.SharedWait)
	}
	s.alertNearbyOwners(ctx, p.Order)
	return p, nil
}

func (s *Service) placeSharedLocked(ctx context.Context, filter order.MatchFilter, create order.CreateCommand) (*Placement, error) {
	unlock, err := s.locker.Lock(ctx, filter.Key())
	if err != nil {
		return nil, err
	}
	defer unlock()

	filter.ExcludeCustomer = create.Actor.ID
	var p *Placement
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.Create(ctx, create)
		if err != nil {
			return err
		}
		p, err = s.match(ctx, o, filter)
		if err != nil {
			return fmt.Errorf("match order %s: %w", o.Number, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("matching: shared placement for %s rolled back: %v", create.Actor.ID, err)
		return nil, err
	}
	return p, nil
}

// match merges o with the first waiting partner whose combined demand a
// vehicle can carry in full. If the first partner cannot be carried by any
// vehicle the pair waits for one; a partner lost to a concurrent merge is
// skipped.
func (s *Service) match(ctx context.Context, o *order.Order, filter order.MatchFilter) (*Placement, error) {
	partners, err := s.orders.MergeCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(partners) == 0 {
		return &Placement{Order: o, Outcome: OutcomeWaitingForMatch, TotalCapacity: o.Capacity}, nil
	}
	pool, err := s.fleet.SelectableVehicles(ctx)
	if err != nil {
		return nil, err
	}

	for _, partner := range partners {
		if partner.ID == o.ID {
			continue
		}
		members := []*order.Order{partner, o}
		demands := []allocation.Demand{
			{CustomerID: partner.ID, Liters: partner.Capacity},
			{CustomerID: o.ID, Liters: o.Capacity},
		}
		total := allocation.TotalDemand(demands)
		sel := fleet.SelectForMerge(pool, total)
		fits, plans := s.completing(sel, demands)
		if len(fits) == 0 {
			return &Placement{
				Order:         o,
				Outcome:       OutcomeWaitingForVehicle,
				Cohort:        members,
				TotalCapacity: total,
				Hint:          sel.Hint,
			}, nil
		}

		candidates := make([]order.Candidate, len(fits))
		for i, f := range fits {
			candidates[i] = order.Candidate{VehicleID: f.Vehicle.ID, Utilization: f.Utilization}
		}
		groupID := types.NewID()
		cohort, err := s.orders.Merge(ctx, order.MergeCommand{
			OrderIDs:   []types.ID{partner.ID, o.ID},
			GroupID:    groupID,
			Vehicle:    fits[0].Vehicle.ID,
			Plan:       plans[0],
			Candidates: candidates,
		})
		if errors.Is(err, order.ErrConflict) {
			log.Printf("matching: partner %s for %s taken concurrently: %v", partner.Number, o.Number, err)
			cur, ferr := s.orders.Find(ctx, o.ID)
			if ferr != nil {
				return nil, ferr
			}
			if cur.Merged {
				return &Placement{Order: cur, Outcome: OutcomeMerged, GroupID: cur.SharedGroupID, TotalCapacity: cur.Capacity}, nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		v := fits[0].Vehicle
		return &Placement{
			Order:         pick(cohort, o.ID),
			Outcome:       OutcomeMerged,
			Cohort:        cohort,
			GroupID:       &groupID,
			Vehicle:       &v,
			Band:          fits[0].Band,
			Utilization:   fits[0].Utilization,
			Plan:          &plans[0],
			TotalCapacity: total,
		}, nil
	}
	return &Placement{Order: o, Outcome: OutcomeWaitingForMatch, TotalCapacity: o.Capacity}, nil
}

// completing keeps the fits, in preference order, whose compartments hold
// every demand in full.
func (s *Service) completing(sel fleet.Selection, demands []allocation.Demand) ([]fleet.Fit, []allocation.Plan) {
	var (
		fits  []fleet.Fit
		plans []allocation.Plan
	)
	for _, f := range sel.Candidates() {
		plan := allocation.Allocate(demands, f.Vehicle.Compartments, s.mode())
		if !plan.Complete() {
			continue
		}
		fits = append(fits, f)
		plans = append(plans, plan)
	}
	return fits, plans
}

// alertNearbyOwners texts the owners of selectable vehicles reporting a fresh
// position within the configured radius of the order's company.
func (s *Service) alertNearbyOwners(ctx context.Context, o *order.Order) {
	if s.positions == nil || o == nil {
		return
	}
	center, ok := o.CompanyLocation()
	if !ok {
		return
	}
	found, err := s.positions.Nearby(ctx, center, s.cfg.RadiusKm)
	if err != nil {
		log.Printf("matching: nearby vehicles for %s: %v", o.Number, err)
		return
	}
	if len(found) == 0 {
		return
	}
	pool, err := s.fleet.SelectableVehicles(ctx)
	if err != nil {
		log.Printf("matching: vehicle pool for %s: %v", o.Number, err)
		return
	}
	byDevice := make(map[string]fleet.Vehicle, len(pool))
	for _, v := range pool {
		byDevice[v.TrackerID()] = v
	}

	seen := make(map[types.ID]bool)
	var owners []account.Contact
	for _, p := range found {
		v, ok := byDevice[p.DeviceID]
		if !ok || seen[v.OwnerID] {
			continue
		}
		seen[v.OwnerID] = true
		c, err := s.contacts.Contact(ctx, v.OwnerID)
		if err != nil {
			log.Printf("matching: owner contact %s: %v", v.OwnerID, err)
			continue
		}
		owners = append(owners, c)
	}
	if len(owners) == 0 {
		return
	}
	e := s.orders.Describe(ctx, notify.KindNearbyOrder, []*order.Order{o}, nil, nil)
	e.Owners = owners
	s.notify(ctx, e)
}

// HandleReminder runs the single deferred check scheduled at placement. A
// reminder for an order that has moved on does nothing.
func (s *Service) HandleReminder(ctx context.Context, r reminder.Reminder) error {
	o, err := s.orders.Find(ctx, r.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		log.Printf("matching: reminder %s for missing order %s", r.Kind, r.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	switch r.Kind {
	case reminder.KindSharedMatchWait:
		if o.Status != order.StatusPending || o.Merged {
			return nil
		}
		e := s.orders.Describe(ctx, notify.KindMatchReminder, []*order.Order{o}, nil, nil)
		e.Waited = s.cfg.SharedWait
		s.notify(ctx, e)
	case reminder.KindPrivateUnaccepted:
		if o.Status != order.StatusPending && o.Status != order.StatusRequested {
			return nil
		}
		var v *fleet.Vehicle
		if o.VehicleID != nil {
			if v, err = s.fleet.Vehicle(ctx, *o.VehicleID); err != nil {
				log.Printf("matching: vehicle %s for reminder on %s: %v", *o.VehicleID, o.Number, err)
				v = nil
			}
		}
		s.notify(ctx, s.orders.Describe(ctx, notify.KindUnacceptedReminder, []*order.Order{o}, v, nil))
	default:
		return fmt.Errorf("unknown reminder kind %q", r.Kind)
	}
	return nil
}

func (s *Service) createCommand(cmd PlaceCommand, fuel order.FuelType, route order.RouteKind, depot catalog.DepotName, company catalog.Company, st *catalog.Station) order.CreateCommand {
	return order.CreateCommand{
		Actor:    cmd.Actor,
		FuelType: fuel,
		Route:    route,
		Capacity: cmd.Capacity,
		Source:   strings.TrimSpace(cmd.Source),
		Depot:    string(depot),
		District: st.District,
		Stations: []order.StationRef{{
			ID:       st.ID,
			Name:     st.Name,
			District: st.District,
			Location: st.Location,
		}},
		Companies:    []order.Company{{Name: company.Name, Location: company.Location}},
		Price:        cmd.Price,
		DistanceKm:   cmd.DistanceKm,
		DeliveryTime: cmd.DeliveryTime,
	}
}

func validatePlace(cmd PlaceCommand, route order.RouteKind) (order.FuelType, error) {
	fuel, ok := order.ParseFuelType(strings.TrimSpace(cmd.FuelType))
	if !ok {
		return "", fmt.Errorf("%w: unknown fuel type %q", order.ErrValidation, cmd.FuelType)
	}
	if cmd.Capacity <= 0 {
		return "", fmt.Errorf("%w: capacity must be positive", order.ErrValidation)
	}
	if strings.TrimSpace(cmd.Station) == "" {
		return "", fmt.Errorf("%w: station is required", order.ErrValidation)
	}
	switch route {
	case order.RoutePrivate:
		if cmd.DeliveryTime == nil {
			return "", fmt.Errorf("%w: private orders need a delivery time", order.ErrValidation)
		}
	case order.RouteShared:
		if strings.TrimSpace(cmd.District) == "" {
			return "", fmt.Errorf("%w: shared orders need a district", order.ErrValidation)
		}
	}
	return fuel, nil
}

func (s *Service) mode() allocation.Mode {
	if s.cfg.ExclusiveCompartments {
		return allocation.ModeExclusive
	}
	return allocation.ModeSplit
}

func (s *Service) schedule(ctx context.Context, kind reminder.Kind, orderID types.ID, after time.Duration) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.Schedule(ctx, kind, orderID, time.Now().Add(after)); err != nil {
		log.Printf("matching: schedule %s for %s: %v", kind, orderID, err)
	}
}

func (s *Service) notify(ctx context.Context, e notify.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, e)
}

func pick(cohort []*order.Order, id types.ID) *order.Order {
	for _, o := range cohort {
		if o.ID == id {
			return o
		}
	}
	return cohort[0]
}
