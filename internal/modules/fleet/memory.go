// README: In-memory vehicle and driver store for local runs and tests.
package fleet

import (
	"context"
	"sort"
	"strings"
	"sync"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/types"
)

type MemoryStore struct {
	mu       sync.RWMutex
	vehicles map[types.ID]Vehicle
	drivers  map[types.ID]Driver
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles: make(map[types.ID]Vehicle),
		drivers:  make(map[types.ID]Driver),
	}
}

func (m *MemoryStore) putVehicle(ctx context.Context, v Vehicle) {
	prev, existed := m.vehicles[v.ID]
	m.vehicles[v.ID] = v
	infra.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.vehicles[v.ID] = prev
		} else {
			delete(m.vehicles, v.ID)
		}
	})
}

func (m *MemoryStore) putDriver(ctx context.Context, d Driver) {
	prev, existed := m.drivers[d.ID]
	m.drivers[d.ID] = d
	infra.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.drivers[d.ID] = prev
		} else {
			delete(m.drivers, d.ID)
		}
	})
}

func (m *MemoryStore) CreateVehicle(ctx context.Context, v *Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.vehicles {
		if strings.EqualFold(existing.PlateNumber, v.PlateNumber) || existing.Identity == v.Identity {
			return ErrDuplicate
		}
	}
	m.putVehicle(ctx, v.clone())
	return nil
}

func (m *MemoryStore) GetVehicle(_ context.Context, id types.ID) (*Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := v.clone()
	return &out, nil
}

func (m *MemoryStore) ListVehicles(_ context.Context, f VehicleFilter) ([]*Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Vehicle
	for _, v := range m.vehicles {
		if f.matches(v) {
			c := v.clone()
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateVehicleStatus(ctx context.Context, id types.ID, from, to VehicleStatus, bound *types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.Status != from {
		return false, nil
	}
	v.Status = to
	v.BoundOrder = nil
	if bound != nil {
		b := *bound
		v.BoundOrder = &b
	}
	m.putVehicle(ctx, v)
	return true, nil
}

func (m *MemoryStore) CreateDriver(ctx context.Context, d *Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.drivers {
		if existing.LicenseNumber != "" && existing.LicenseNumber == d.LicenseNumber {
			return ErrDuplicate
		}
	}
	m.putDriver(ctx, d.clone())
	return nil
}

func (m *MemoryStore) GetDriver(_ context.Context, id types.ID) (*Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := d.clone()
	return &out, nil
}

func (m *MemoryStore) BindDriver(ctx context.Context, id, orderID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok || d.Status != DriverAvailable {
		return false, nil
	}
	d.Status = DriverBusy
	o := orderID
	d.AssignedOrder = &o
	m.putDriver(ctx, d)
	return true, nil
}

func (m *MemoryStore) ReleaseDriver(ctx context.Context, id, orderID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok || d.Status != DriverBusy || d.AssignedOrder == nil || *d.AssignedOrder != orderID {
		return false, nil
	}
	d.Status = DriverAvailable
	d.AssignedOrder = nil
	m.putDriver(ctx, d)
	return true, nil
}

func (m *MemoryStore) UpdateDriverStatus(ctx context.Context, id types.ID, from, to DriverStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	m.putDriver(ctx, d)
	return true, nil
}
