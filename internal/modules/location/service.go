// README: Location service records device fixes and answers proximity queries over fresh positions.
package location

import (
	"context"
	"errors"
	"log"
	"time"

	"fuelhaul/internal/types"
)

var ErrInvalidPosition = errors.New("invalid position")

type Feed interface {
	Record(ctx context.Context, p Position) error
	Latest(ctx context.Context, deviceID string) (Position, bool, error)
	Within(ctx context.Context, center types.Point, radiusKm float64) ([]Position, error)
}

type History interface {
	AppendSnapshot(ctx context.Context, p Position) error
}

type Service struct {
	feed    Feed
	history History
	maxAge  time.Duration
	now     func() time.Time
}

// NewService builds the service. Positions older than maxAge are ignored by
// Nearby; maxAge <= 0 disables the freshness filter. history may be nil.
func NewService(feed Feed, history History, maxAge time.Duration) *Service {
	return &Service{feed: feed, history: history, maxAge: maxAge, now: time.Now}
}

type Update struct {
	DeviceID   string
	Point      types.Point
	ObservedAt time.Time
}

func (s *Service) Record(ctx context.Context, u Update) error {
	if u.DeviceID == "" || !u.Point.Valid() {
		return ErrInvalidPosition
	}
	if u.ObservedAt.IsZero() {
		u.ObservedAt = s.now()
	}
	p := Position{DeviceID: u.DeviceID, Point: u.Point, ObservedAt: u.ObservedAt}
	if err := s.feed.Record(ctx, p); err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.AppendSnapshot(ctx, p); err != nil {
			log.Printf("location: snapshot %s: %v", u.DeviceID, err)
		}
	}
	return nil
}

func (s *Service) Latest(ctx context.Context, deviceID string) (Position, bool, error) {
	return s.feed.Latest(ctx, deviceID)
}

// Nearby returns fresh device positions within radiusKm of center, closest first.
func (s *Service) Nearby(ctx context.Context, center types.Point, radiusKm float64) ([]Position, error) {
	if !center.Valid() {
		return nil, ErrInvalidPosition
	}
	found, err := s.feed.Within(ctx, center, radiusKm)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, p := range found {
		if s.maxAge > 0 && s.now().Sub(p.ObservedAt) > s.maxAge {
			continue
		}
		// Redis GEO measures on its own earth radius; keep one radius rule for every feed.
		if !WithinRadius(center, p.Point, radiusKm) {
			continue
		}
		out = append(out, p)
	}
	sortByDistance(out, func(p Position) float64 { return p.DistanceKm })
	return out, nil
}
