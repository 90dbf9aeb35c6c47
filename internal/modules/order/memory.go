// README: In-memory order and suggestion store for local runs and tests.
package order

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/types"
)

type MemoryStore struct {
	mu          sync.RWMutex
	orders      map[types.ID]Order
	events      []Event
	suggestions map[types.ID]Suggestion
	seq         int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[types.ID]Order),
		suggestions: make(map[types.ID]Suggestion),
	}
}

func (m *MemoryStore) putOrder(ctx context.Context, o Order) {
	prev, existed := m.orders[o.ID]
	m.orders[o.ID] = o
	infra.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.orders[o.ID] = prev
		} else {
			delete(m.orders, o.ID)
		}
	})
}

func (m *MemoryStore) putSuggestion(ctx context.Context, s Suggestion) {
	prev, existed := m.suggestions[s.ID]
	m.suggestions[s.ID] = s
	infra.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.suggestions[s.ID] = prev
		} else {
			delete(m.suggestions, s.ID)
		}
	})
}

func (m *MemoryStore) Create(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return ErrConflict
	}
	m.putOrder(ctx, o.clone())
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := o.clone()
	return &out, nil
}

func (m *MemoryStore) CountCustomerOrdersSince(_ context.Context, customerID types.ID, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, o := range m.orders {
		if o.CustomerID == customerID && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListGroup(_ context.Context, groupID types.ID) ([]*Order, error) {
	return m.list(func(o Order) bool {
		return o.SharedGroupID != nil && *o.SharedGroupID == groupID
	}, oldestFirst), nil
}

func (m *MemoryStore) ListMergeCandidates(_ context.Context, f MatchFilter) ([]*Order, error) {
	return m.list(func(o Order) bool {
		return o.Status == StatusPending &&
			o.Route == RouteShared &&
			!o.Merged &&
			o.CustomerID != f.ExcludeCustomer &&
			o.FuelType == f.FuelType &&
			strings.EqualFold(o.Source, f.Source) &&
			strings.EqualFold(o.Depot, f.Depot) &&
			strings.EqualFold(o.District, f.District) &&
			strings.EqualFold(o.CompanyName(), f.Company)
	}, newestFirst), nil
}

func (m *MemoryStore) ListRequestedForVehicles(_ context.Context, vehicleIDs []types.ID) ([]*Order, error) {
	want := make(map[types.ID]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		want[id] = true
	}
	return m.list(func(o Order) bool {
		return o.Status == StatusRequested && o.VehicleID != nil && want[*o.VehicleID]
	}, oldestFirst), nil
}

func (m *MemoryStore) list(match func(Order) bool, less func(a, b *Order) bool) []*Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Order
	for _, o := range m.orders {
		if match(o) {
			c := o.clone()
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func oldestFirst(a, b *Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func newestFirst(a, b *Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, p Patch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o = o.clone()
	applyPatch(&o, to, p)
	m.putOrder(ctx, o)
	return true, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e.ID = m.seq
	m.events = append(m.events, *e)
	id := e.ID
	infra.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i := range m.events {
			if m.events[i].ID == id {
				m.events = append(m.events[:i], m.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

// All returns every stored order, oldest first.
func (m *MemoryStore) All() []*Order {
	return m.list(func(Order) bool { return true }, oldestFirst)
}

// Events returns the state events recorded for an order, oldest first.
func (m *MemoryStore) Events(orderID types.ID) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) CreateSuggestion(ctx context.Context, s *Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putSuggestion(ctx, *s)
	return nil
}

func (m *MemoryStore) FindSuggestion(_ context.Context, orderID, vehicleID types.ID, status SuggestionStatus) (*Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Suggestion
	for _, s := range m.suggestions {
		if s.OrderID != orderID || s.VehicleID != vehicleID || s.Status != status {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			c := s
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) ListSuggestions(_ context.Context, orderID types.ID) ([]*Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Suggestion
	for _, s := range m.suggestions {
		if s.OrderID == orderID {
			c := s
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

func (m *MemoryStore) UpdateSuggestionStatus(ctx context.Context, id types.ID, from, to SuggestionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suggestions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	m.putSuggestion(ctx, s)
	return true, nil
}
