// README: In-memory catalog store for local runs and tests.
package catalog

import (
	"context"
	"sync"

	"fuelhaul/internal/types"
)

type MemoryStore struct {
	mu       sync.RWMutex
	depots   map[DepotName]Depot
	stations map[types.ID]Station
	order    []types.ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		depots:   make(map[DepotName]Depot),
		stations: make(map[types.ID]Station),
	}
}

func (m *MemoryStore) PutDepot(_ context.Context, d Depot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depots[d.Name] = d
	return nil
}

func (m *MemoryStore) GetDepot(_ context.Context, name DepotName) (*Depot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.depots[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) CreateStation(_ context.Context, st *Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.stations {
		if existing.CustomerID == st.CustomerID && sameName(existing.Name, st.Name) {
			return ErrDuplicate
		}
	}
	m.stations[st.ID] = *st
	m.order = append(m.order, st.ID)
	return nil
}

func (m *MemoryStore) GetStation(_ context.Context, id types.ID) (*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (m *MemoryStore) FindCustomerStation(_ context.Context, customerID types.ID, name string) (*Station, error) {
	return m.find(func(st Station) bool { return st.CustomerID == customerID && sameName(st.Name, name) })
}

func (m *MemoryStore) FindStationInDistrict(_ context.Context, name, district string) (*Station, error) {
	return m.find(func(st Station) bool { return sameName(st.Name, name) && sameName(st.District, district) })
}

func (m *MemoryStore) find(match func(Station) bool) (*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if st := m.stations[id]; match(st) {
			return &st, nil
		}
	}
	return nil, ErrNotFound
}
