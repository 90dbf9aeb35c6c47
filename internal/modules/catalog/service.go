// README: Catalog service validates depot/source/company triples and manages customer stations.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

var (
	ErrValidation = errors.New("invalid catalog request")
	ErrNotFound   = errors.New("catalog record not found")
	ErrDuplicate  = errors.New("station already registered")
)

type Storage interface {
	PutDepot(ctx context.Context, d Depot) error
	GetDepot(ctx context.Context, name DepotName) (*Depot, error)
	CreateStation(ctx context.Context, st *Station) error
	GetStation(ctx context.Context, id types.ID) (*Station, error)
	FindCustomerStation(ctx context.Context, customerID types.ID, name string) (*Station, error)
	FindStationInDistrict(ctx context.Context, name, district string) (*Station, error)
}

type Service struct {
	store Storage
	now   func() time.Time
}

func NewService(store Storage) *Service {
	return &Service{store: store, now: time.Now}
}

// ResolveCompany validates the depot, source and company names and returns the
// catalog company with its coordinate. Unknown names are validation errors.
func (s *Service) ResolveCompany(ctx context.Context, depot, source, company string) (DepotName, Company, error) {
	name, ok := ParseDepot(depot)
	if !ok {
		return "", Company{}, fmt.Errorf("%w: unknown depot %q", ErrValidation, depot)
	}
	d, err := s.store.GetDepot(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return "", Company{}, fmt.Errorf("%w: depot %s has no catalog entry", ErrValidation, name)
	}
	if err != nil {
		return "", Company{}, err
	}
	c, ok := d.company(source, company)
	if !ok {
		return "", Company{}, fmt.Errorf("%w: company %q not listed under source %q at %s", ErrValidation, company, source, name)
	}
	return name, c, nil
}

func (s *Service) PutDepot(ctx context.Context, d Depot) error {
	if _, ok := ParseDepot(string(d.Name)); !ok {
		return fmt.Errorf("%w: unknown depot %q", ErrValidation, d.Name)
	}
	return s.store.PutDepot(ctx, d)
}

// ImportDepots reads a JSON array of depots and stores each one, replacing
// any existing entry with the same name.
func (s *Service) ImportDepots(ctx context.Context, r io.Reader) (int, error) {
	var depots []Depot
	if err := json.NewDecoder(r).Decode(&depots); err != nil {
		return 0, fmt.Errorf("%w: depot file: %v", ErrValidation, err)
	}
	for i, d := range depots {
		if err := s.PutDepot(ctx, d); err != nil {
			return i, err
		}
	}
	return len(depots), nil
}

type RegisterStationCommand struct {
	Actor    policy.Actor
	Name     string
	Label    string
	Region   string
	District string
	Location types.Point
}

func (s *Service) RegisterStation(ctx context.Context, cmd RegisterStationCommand) (*Station, error) {
	if err := policy.Authorize(cmd.Actor, policy.CapManageStations); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.Name) == "" || strings.TrimSpace(cmd.Region) == "" || strings.TrimSpace(cmd.District) == "" {
		return nil, fmt.Errorf("%w: name, region and district are required", ErrValidation)
	}
	if !cmd.Location.Valid() {
		return nil, fmt.Errorf("%w: station coordinate out of range", ErrValidation)
	}
	label := strings.TrimSpace(cmd.Label)
	if label == "" {
		label = strings.TrimSpace(cmd.Name)
	}
	st := &Station{
		ID:         types.NewID(),
		CustomerID: cmd.Actor.ID,
		Name:       strings.TrimSpace(cmd.Name),
		Label:      label,
		Region:     strings.TrimSpace(cmd.Region),
		District:   strings.TrimSpace(cmd.District),
		Location:   cmd.Location,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateStation(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) Station(ctx context.Context, id types.ID) (*Station, error) {
	return s.store.GetStation(ctx, id)
}

// CustomerStation finds one of the customer's own stations by name.
func (s *Service) CustomerStation(ctx context.Context, customerID types.ID, name string) (*Station, error) {
	return s.store.FindCustomerStation(ctx, customerID, name)
}

func (s *Service) StationInDistrict(ctx context.Context, name, district string) (*Station, error) {
	return s.store.FindStationInDistrict(ctx, name, district)
}
