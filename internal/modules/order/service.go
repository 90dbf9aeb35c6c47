// README: Order service implements placement writes, the lifecycle state machine, and suggestions.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

var (
	ErrValidation         = errors.New("invalid order request")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrNotFound           = errors.New("order not found")
	ErrConflict           = errors.New("order state conflict")
	ErrAllocationOverflow = errors.New("allocation overflow")
)

type Storage interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	CountCustomerOrdersSince(ctx context.Context, customerID types.ID, since time.Time) (int, error)
	ListGroup(ctx context.Context, groupID types.ID) ([]*Order, error)
	ListMergeCandidates(ctx context.Context, f MatchFilter) ([]*Order, error)
	ListRequestedForVehicles(ctx context.Context, vehicleIDs []types.ID) ([]*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, p Patch) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error

	CreateSuggestion(ctx context.Context, s *Suggestion) error
	FindSuggestion(ctx context.Context, orderID, vehicleID types.ID, status SuggestionStatus) (*Suggestion, error)
	ListSuggestions(ctx context.Context, orderID types.ID) ([]*Suggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id types.ID, from, to SuggestionStatus) (bool, error)
}

// Patch carries the fields written together with a status change.
// Nil fields are left untouched.
type Patch struct {
	At            time.Time
	SharedGroupID *types.ID
	VehicleID     *types.ID
	DriverID      *types.ID
	Compartments  []allocation.Assignment
	CancelReason  *string
}

type Fleet interface {
	Vehicle(ctx context.Context, id types.ID) (*fleet.Vehicle, error)
	VehiclesByOwner(ctx context.Context, ownerID types.ID) ([]*fleet.Vehicle, error)
	Driver(ctx context.Context, id types.ID) (*fleet.Driver, error)
	BindForTrip(ctx context.Context, driverID, vehicleID, tripKey types.ID) error
	ReleaseTrip(ctx context.Context, driverID, vehicleID, tripKey types.ID) error
}

type Directory interface {
	Contact(ctx context.Context, id types.ID) (account.Contact, error)
	Staff(ctx context.Context) ([]account.Contact, error)
}

type Notifier interface {
	Notify(ctx context.Context, e notify.Event)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// LifecycleEvent is published for every committed transition.
type LifecycleEvent struct {
	OrderID    types.ID  `json:"order_id"`
	Number     string    `json:"number"`
	CustomerID types.ID  `json:"customer_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	GroupID    *types.ID `json:"group_id,omitempty"`
	VehicleID  *types.ID `json:"vehicle_id,omitempty"`
	DriverID   *types.ID `json:"driver_id,omitempty"`
	ActorType  string    `json:"actor_type"`
	At         time.Time `json:"at"`
}

type Deps struct {
	Store    Storage
	Tx       infra.TxManager
	Fleet    Fleet
	Contacts Directory
	Notifier Notifier
	// Events may be nil.
	Events EventPublisher
	Mode   allocation.Mode
}

type Service struct {
	store    Storage
	tx       infra.TxManager
	fleet    Fleet
	contacts Directory
	notifier Notifier
	events   EventPublisher
	mode     allocation.Mode
	now      func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		store:    d.Store,
		tx:       d.Tx,
		fleet:    d.Fleet,
		contacts: d.Contacts,
		notifier: d.Notifier,
		events:   d.Events,
		mode:     d.Mode,
		now:      time.Now,
	}
}

type CreateCommand struct {
	Actor        policy.Actor
	FuelType     FuelType
	Route        RouteKind
	Capacity     int64
	Source       string
	Depot        string
	District     string
	Stations     []StationRef
	Companies    []Company
	Price        types.Money
	DistanceKm   float64
	DeliveryTime *time.Time
}

// Create stores a new Pending order and allocates its number.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapPlaceOrder); err != nil {
		return nil, err
	}
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}
	price := cmd.Price
	if price.Currency == "" {
		price.Currency = types.DefaultCurrency
	}

	var o *Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now()
		count, err := s.store.CountCustomerOrdersSince(ctx, cmd.Actor.ID, startOfDay(now))
		if err != nil {
			return err
		}
		o = &Order{
			ID:           types.NewID(),
			Number:       NewOrderNumber(cmd.Actor.ID, now, count),
			CustomerID:   cmd.Actor.ID,
			FuelType:     cmd.FuelType,
			Route:        cmd.Route,
			Capacity:     cmd.Capacity,
			Source:       strings.TrimSpace(cmd.Source),
			Depot:        strings.TrimSpace(cmd.Depot),
			District:     strings.TrimSpace(cmd.District),
			Stations:     append([]StationRef(nil), cmd.Stations...),
			Companies:    append([]Company(nil), cmd.Companies...),
			Price:        price,
			DistanceKm:   cmd.DistanceKm,
			DeliveryTime: cmd.DeliveryTime,
			Status:       StatusPending,
			CreatedAt:    now,
		}
		if err := s.store.Create(ctx, o); err != nil {
			return err
		}
		return s.record(ctx, o, StatusNone, StatusPending, cmd.Actor, now)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func validateCreate(cmd CreateCommand) error {
	if _, ok := ParseFuelType(string(cmd.FuelType)); !ok {
		return fmt.Errorf("%w: unknown fuel type %q", ErrValidation, cmd.FuelType)
	}
	if cmd.Route != RoutePrivate && cmd.Route != RouteShared {
		return fmt.Errorf("%w: unknown route kind %q", ErrValidation, cmd.Route)
	}
	if cmd.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrValidation)
	}
	if strings.TrimSpace(cmd.Source) == "" || strings.TrimSpace(cmd.Depot) == "" {
		return fmt.Errorf("%w: source and depot are required", ErrValidation)
	}
	if len(cmd.Stations) == 0 {
		return fmt.Errorf("%w: at least one station is required", ErrValidation)
	}
	if len(cmd.Companies) == 0 || strings.TrimSpace(cmd.Companies[0].Name) == "" {
		return fmt.Errorf("%w: at least one company is required", ErrValidation)
	}
	if cmd.Price.Amount < 0 || cmd.DistanceKm < 0 {
		return fmt.Errorf("%w: price and distance must not be negative", ErrValidation)
	}
	if cmd.Route == RoutePrivate && cmd.DeliveryTime == nil {
		return fmt.Errorf("%w: private orders need a delivery time", ErrValidation)
	}
	return nil
}

// Find loads an order without an authorization check; for internal callers.
func (s *Service) Find(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// Get returns an order the actor may see.
func (s *Service) Get(ctx context.Context, actor policy.Actor, id types.ID) (*Order, error) {
	if err := policy.Authorize(actor, policy.CapViewOrder); err != nil {
		return nil, err
	}
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case policy.RoleCustomer:
		if o.CustomerID != actor.ID {
			return nil, ErrNotFound
		}
	case policy.RoleDriver:
		if o.DriverID == nil || *o.DriverID != actor.ID {
			return nil, ErrNotFound
		}
	}
	return o, nil
}

// Cohort returns every order travelling with o: the merged group, or o alone.
func (s *Service) Cohort(ctx context.Context, o *Order) ([]*Order, error) {
	if o.SharedGroupID == nil {
		return []*Order{o}, nil
	}
	group, err := s.store.ListGroup(ctx, *o.SharedGroupID)
	if err != nil {
		return nil, err
	}
	if len(group) == 0 {
		return []*Order{o}, nil
	}
	return group, nil
}

func (s *Service) MergeCandidates(ctx context.Context, f MatchFilter) ([]*Order, error) {
	return s.store.ListMergeCandidates(ctx, f)
}

// RequestedForOwner lists Requested orders whose vehicle belongs to the actor.
func (s *Service) RequestedForOwner(ctx context.Context, actor policy.Actor) ([]*Order, error) {
	if err := policy.Authorize(actor, policy.CapAcceptOrder); err != nil {
		return nil, err
	}
	vehicles, err := s.fleet.VehiclesByOwner(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, nil
	}
	ids := make([]types.ID, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}
	return s.store.ListRequestedForVehicles(ctx, ids)
}

// Candidate is a vehicle to suggest for an order or group.
type Candidate struct {
	VehicleID   types.ID
	Utilization float64
}

type ProposeCommand struct {
	OrderID      types.ID
	Vehicle      Candidate
	Compartments []allocation.Assignment
}

// Propose moves a Pending private order to Requested with a suggested vehicle.
func (s *Service) Propose(ctx context.Context, cmd ProposeCommand) (*Order, error) {
	var out *Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.store.Get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if o.Route != RoutePrivate || !CanTransition(o.Status, StatusRequested) {
			return ErrInvalidState
		}
		vid := cmd.Vehicle.VehicleID
		if err := s.transition(ctx, o, StatusRequested, Patch{VehicleID: &vid, Compartments: cmd.Compartments}, policy.System()); err != nil {
			return err
		}
		if err := s.suggest(ctx, o.ID, nil, cmd.Vehicle); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type MergeCommand struct {
	OrderIDs   []types.ID
	GroupID    types.ID
	Vehicle    types.ID
	Plan       allocation.Plan
	Candidates []Candidate
}

// Merge binds Pending shared orders into one group in a single transaction.
// The plan's demand keys are order ids. Any order that is no longer an
// unmerged Pending shared order fails the whole merge with ErrConflict.
func (s *Service) Merge(ctx context.Context, cmd MergeCommand) ([]*Order, error) {
	if len(cmd.OrderIDs) < 2 || cmd.GroupID == "" || cmd.Vehicle == "" {
		return nil, fmt.Errorf("%w: a merge needs two orders, a group and a vehicle", ErrValidation)
	}
	if !cmd.Plan.Complete() {
		return nil, ErrAllocationOverflow
	}
	var cohort []*Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cohort = cohort[:0]
		for _, id := range cmd.OrderIDs {
			o, err := s.store.Get(ctx, id)
			if err != nil {
				return err
			}
			if o.Route != RouteShared || o.Merged || o.Status != StatusPending {
				return fmt.Errorf("%w: order %s is no longer waiting", ErrConflict, o.Number)
			}
			group, vehicle := cmd.GroupID, cmd.Vehicle
			patch := Patch{
				SharedGroupID: &group,
				VehicleID:     &vehicle,
				Compartments:  cmd.Plan.For(o.ID),
			}
			if err := s.transition(ctx, o, StatusRequested, patch, policy.System()); err != nil {
				return err
			}
			for _, c := range cmd.Candidates {
				if err := s.suggest(ctx, o.ID, &group, c); err != nil {
					return err
				}
			}
			cohort = append(cohort, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cohort, nil
}

func (s *Service) suggest(ctx context.Context, orderID types.ID, groupID *types.ID, c Candidate) error {
	return s.store.CreateSuggestion(ctx, &Suggestion{
		ID:          types.NewID(),
		OrderID:     orderID,
		VehicleID:   c.VehicleID,
		GroupID:     cloneID(groupID),
		Utilization: c.Utilization,
		Status:      SuggestionSuggested,
		CreatedAt:   s.now(),
	})
}

// transition performs the conditional status write and appends the state
// event. o is updated in place on success. Lifecycle events are published
// once the surrounding transaction commits.
func (s *Service) transition(ctx context.Context, o *Order, to Status, p Patch, actor policy.Actor) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidState, o.Status, to, o.Number)
	}
	if p.At.IsZero() {
		p.At = s.now()
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, to, o.StatusVersion, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s changed concurrently", ErrConflict, o.Number)
	}
	from := o.Status
	applyPatch(o, to, p)
	return s.record(ctx, o, from, to, actor, p.At)
}

func applyPatch(o *Order, to Status, p Patch) {
	o.Status = to
	o.StatusVersion++
	if p.SharedGroupID != nil {
		o.SharedGroupID = cloneID(p.SharedGroupID)
		o.Merged = true
	}
	if p.VehicleID != nil {
		o.VehicleID = cloneID(p.VehicleID)
	}
	if p.DriverID != nil {
		o.DriverID = cloneID(p.DriverID)
	}
	if p.Compartments != nil {
		o.Compartments = append([]allocation.Assignment(nil), p.Compartments...)
	}
	if p.CancelReason != nil {
		r := *p.CancelReason
		o.CancelReason = &r
	}
	at := p.At
	switch to {
	case StatusRequested:
		o.RequestedAt = &at
	case StatusAccepted:
		o.AcceptedAt = &at
	case StatusAssigned:
		o.AssignedAt = &at
	case StatusOnDelivery:
		o.TripStartedAt = &at
	case StatusCompleted:
		o.TripEndedAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	}
}

func (s *Service) record(ctx context.Context, o *Order, from, to Status, actor policy.Actor, at time.Time) error {
	var actorID *types.ID
	if actor.ID != "" {
		id := actor.ID
		actorID = &id
	}
	if err := s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  string(actor.Role),
		ActorID:    actorID,
		CreatedAt:  at,
	}); err != nil {
		return err
	}
	if s.events == nil {
		return nil
	}
	ev := LifecycleEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		From:       from,
		To:         to,
		GroupID:    cloneID(o.SharedGroupID),
		VehicleID:  cloneID(o.VehicleID),
		DriverID:   cloneID(o.DriverID),
		ActorType:  string(actor.Role),
		At:         at,
	}
	key := string(o.TripKey())
	infra.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.events.Publish(ctx, key, ev); err != nil {
			log.Printf("order: publish %s %s->%s: %v", ev.Number, from, to, err)
		}
	})
	return nil
}
