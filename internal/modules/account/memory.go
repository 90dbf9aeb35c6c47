// README: In-memory user store for local runs and tests.
package account

import (
	"context"
	"sort"
	"sync"

	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

type MemoryStore struct {
	mu    sync.RWMutex
	users map[types.ID]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[types.ID]User)}
}

func (m *MemoryStore) Upsert(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *u
	if prev, ok := m.users[u.ID]; ok && next.DeviceToken == "" {
		next.DeviceToken = prev.DeviceToken
	}
	m.users[u.ID] = next
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) ListByRole(_ context.Context, role policy.Role) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*User
	for _, u := range m.users {
		if u.Role == role {
			c := u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
