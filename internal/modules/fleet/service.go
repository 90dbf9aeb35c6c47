// README: Fleet service covers vehicle registration/review, the driver roster, and trip binding.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

var (
	ErrValidation         = errors.New("invalid fleet request")
	ErrNotFound           = errors.New("fleet record not found")
	ErrDuplicate          = errors.New("fleet record already exists")
	ErrInvalidState       = errors.New("invalid fleet state transition")
	ErrDriverUnavailable  = errors.New("driver unavailable")
	ErrVehicleUnavailable = errors.New("vehicle unavailable")
	ErrNotOwner           = errors.New("not the owner")
)

type Storage interface {
	CreateVehicle(ctx context.Context, v *Vehicle) error
	GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error)
	ListVehicles(ctx context.Context, f VehicleFilter) ([]*Vehicle, error)
	UpdateVehicleStatus(ctx context.Context, id types.ID, from, to VehicleStatus, bound *types.ID) (bool, error)
	CreateDriver(ctx context.Context, d *Driver) error
	GetDriver(ctx context.Context, id types.ID) (*Driver, error)
	BindDriver(ctx context.Context, id, orderID types.ID) (bool, error)
	ReleaseDriver(ctx context.Context, id, orderID types.ID) (bool, error)
	UpdateDriverStatus(ctx context.Context, id types.ID, from, to DriverStatus) (bool, error)
}

type Service struct {
	store Storage
	now   func() time.Time
}

func NewService(store Storage) *Service {
	return &Service{store: store, now: time.Now}
}

type RegisterVehicleCommand struct {
	Actor            policy.Actor
	PlateNumber      string
	DeviceID         string
	TankCapacity     int64
	CompartmentCount int
	Compartments     []allocation.Compartment
}

func (s *Service) RegisterVehicle(ctx context.Context, cmd RegisterVehicleCommand) (*Vehicle, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapRegisterVehicle); err != nil {
		return nil, err
	}
	if err := validateVehicle(cmd); err != nil {
		return nil, err
	}
	now := s.now()
	v := &Vehicle{
		ID:               types.NewID(),
		OwnerID:          cmd.Actor.ID,
		Identity:         NewIdentityCode(cmd.PlateNumber, now),
		PlateNumber:      strings.ToUpper(strings.TrimSpace(cmd.PlateNumber)),
		DeviceID:         strings.TrimSpace(cmd.DeviceID),
		TankCapacity:     cmd.TankCapacity,
		Compartments:     append([]allocation.Compartment(nil), cmd.Compartments...),
		CompartmentCount: cmd.CompartmentCount,
		Status:           VehicleSubmitted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func validateVehicle(cmd RegisterVehicleCommand) error {
	if strings.TrimSpace(cmd.PlateNumber) == "" {
		return fmt.Errorf("%w: plate number is required", ErrValidation)
	}
	if cmd.TankCapacity <= 0 {
		return fmt.Errorf("%w: tank capacity must be positive", ErrValidation)
	}
	if len(cmd.Compartments) == 0 || cmd.CompartmentCount != len(cmd.Compartments) {
		return fmt.Errorf("%w: compartment count %d does not match %d compartments", ErrValidation, cmd.CompartmentCount, len(cmd.Compartments))
	}
	seen := make(map[string]bool, len(cmd.Compartments))
	var total int64
	for _, c := range cmd.Compartments {
		label := strings.TrimSpace(c.Label)
		if label == "" || seen[label] {
			return fmt.Errorf("%w: compartment labels must be unique and non-empty", ErrValidation)
		}
		seen[label] = true
		if c.Capacity <= 0 {
			return fmt.Errorf("%w: compartment %s capacity must be positive", ErrValidation, label)
		}
		total += c.Capacity
	}
	if total > cmd.TankCapacity {
		return fmt.Errorf("%w: compartments total %d exceeds tank capacity %d", ErrValidation, total, cmd.TankCapacity)
	}
	return nil
}

func (s *Service) ReviewVehicle(ctx context.Context, actor policy.Actor, id types.ID, approve bool) (*Vehicle, error) {
	if err := policy.Authorize(actor, policy.CapReviewVehicle); err != nil {
		return nil, err
	}
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	to := VehicleRejected
	if approve {
		to = VehicleApproved
	}
	if !CanTransitionVehicle(v.Status, to) || v.Status != VehicleSubmitted {
		return nil, ErrInvalidState
	}
	ok, err := s.store.UpdateVehicleStatus(ctx, id, v.Status, to, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	v.Status = to
	return v, nil
}

func (s *Service) Vehicle(ctx context.Context, id types.ID) (*Vehicle, error) {
	return s.store.GetVehicle(ctx, id)
}

func (s *Service) VehiclesByOwner(ctx context.Context, ownerID types.ID) ([]*Vehicle, error) {
	return s.store.ListVehicles(ctx, VehicleFilter{OwnerID: ownerID})
}

// SelectableVehicles returns the pool the fit engine chooses from.
func (s *Service) SelectableVehicles(ctx context.Context) ([]Vehicle, error) {
	vs, err := s.store.ListVehicles(ctx, VehicleFilter{Statuses: []VehicleStatus{VehicleApproved, VehicleAvailable}})
	if err != nil {
		return nil, err
	}
	out := make([]Vehicle, len(vs))
	for i, v := range vs {
		out[i] = *v
	}
	return out, nil
}

// OwnedVehicle loads a vehicle and checks it belongs to ownerID.
func (s *Service) OwnedVehicle(ctx context.Context, ownerID, vehicleID types.ID) (*Vehicle, error) {
	v, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return v, nil
}

type RegisterDriverCommand struct {
	Actor         policy.Actor
	FirstName     string
	LastName      string
	Phone         string
	LicenseNumber string
}

func (s *Service) RegisterDriver(ctx context.Context, cmd RegisterDriverCommand) (*Driver, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapManageDrivers); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.FirstName) == "" || strings.TrimSpace(cmd.Phone) == "" || strings.TrimSpace(cmd.LicenseNumber) == "" {
		return nil, fmt.Errorf("%w: first name, phone and license number are required", ErrValidation)
	}
	d := &Driver{
		ID:            types.NewID(),
		OwnerID:       cmd.Actor.ID,
		FirstName:     strings.TrimSpace(cmd.FirstName),
		LastName:      strings.TrimSpace(cmd.LastName),
		Phone:         strings.TrimSpace(cmd.Phone),
		LicenseNumber: strings.ToUpper(strings.TrimSpace(cmd.LicenseNumber)),
		Status:        DriverUnverified,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateDriver(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) VerifyDriver(ctx context.Context, actor policy.Actor, id types.ID) error {
	if err := policy.Authorize(actor, policy.CapVerifyDriver); err != nil {
		return err
	}
	d, err := s.store.GetDriver(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != DriverUnverified {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateDriverStatus(ctx, id, DriverUnverified, DriverAvailable)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

func (s *Service) Driver(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.GetDriver(ctx, id)
}

// BindForTrip flips driver available->busy and vehicle ->Busy for orderID.
// Both are conditional; call inside a transaction so a failed vehicle flip
// rolls back the driver flip.
func (s *Service) BindForTrip(ctx context.Context, driverID, vehicleID, orderID types.ID) error {
	d, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if d.Status != DriverAvailable {
		return fmt.Errorf("%w: driver %s is %s", ErrDriverUnavailable, driverID, d.Status)
	}
	v, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if !CanTransitionVehicle(v.Status, VehicleBusy) {
		return fmt.Errorf("%w: vehicle %s is %s", ErrVehicleUnavailable, vehicleID, v.Status)
	}
	ok, err := s.store.BindDriver(ctx, driverID, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: driver %s was taken", ErrDriverUnavailable, driverID)
	}
	bound := orderID
	ok, err = s.store.UpdateVehicleStatus(ctx, vehicleID, v.Status, VehicleBusy, &bound)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: vehicle %s was taken", ErrVehicleUnavailable, vehicleID)
	}
	return nil
}

// ReleaseTrip returns the driver to available and the vehicle to Approved.
func (s *Service) ReleaseTrip(ctx context.Context, driverID, vehicleID, orderID types.ID) error {
	ok, err := s.store.ReleaseDriver(ctx, driverID, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: driver %s is not bound to %s", ErrInvalidState, driverID, orderID)
	}
	ok, err = s.store.UpdateVehicleStatus(ctx, vehicleID, VehicleBusy, VehicleApproved, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: vehicle %s is not busy", ErrInvalidState, vehicleID)
	}
	return nil
}
