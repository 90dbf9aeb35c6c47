// README: In-memory reminder store for local runs and tests.
package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"fuelhaul/internal/types"
)

type MemoryStore struct {
	mu        sync.Mutex
	reminders map[types.ID]Reminder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reminders: make(map[types.ID]Reminder)}
}

func (m *MemoryStore) Create(_ context.Context, r *Reminder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.reminders {
		if have.Kind == r.Kind && have.OrderID == r.OrderID {
			return false, nil
		}
	}
	m.reminders[r.ID] = *r
	return true, nil
}

func (m *MemoryStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []Reminder
	for _, r := range m.reminders {
		if r.FiredAt == nil && !r.DueAt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].DueAt.Before(due[j].DueAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*Reminder, len(due))
	for i := range due {
		at := now
		due[i].FiredAt = &at
		due[i].Attempts++
		m.reminders[due[i].ID] = due[i]
		r := due[i]
		out[i] = &r
	}
	return out, nil
}

func (m *MemoryStore) RecordFailure(_ context.Context, id types.ID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil
	}
	r.LastError = reason
	m.reminders[id] = r
	return nil
}

// All returns every stored reminder ordered by due time.
func (m *MemoryStore) All() []Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}
