// README: In-memory position feed for local runs and tests.
package location

import (
	"context"
	"sync"

	"fuelhaul/internal/types"
)

type MemoryFeed struct {
	mu        sync.RWMutex
	positions map[string]Position
	history   []Position
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{positions: make(map[string]Position)}
}

func (f *MemoryFeed) Record(_ context.Context, p Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[p.DeviceID] = p
	return nil
}

func (f *MemoryFeed) Latest(_ context.Context, deviceID string) (Position, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.positions[deviceID]
	return p, ok, nil
}

func (f *MemoryFeed) Within(_ context.Context, center types.Point, radiusKm float64) ([]Position, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []Position
	for _, p := range f.positions {
		d := DistanceKm(center, p.Point)
		if d <= radiusKm {
			p.DistanceKm = d
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *MemoryFeed) AppendSnapshot(_ context.Context, p Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, p)
	return nil
}
