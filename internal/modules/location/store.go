// README: Position feed backed by Redis GEO (latest fix) and Postgres snapshots (history).
package location

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/types"
)

const (
	deviceGeoKey  = "location:devices"
	deviceSeenKey = "location:devices:seen"
)

type RedisFeed struct {
	redis *redis.Client
}

func NewRedisFeed(redis *redis.Client) *RedisFeed {
	return &RedisFeed{redis: redis}
}

func (f *RedisFeed) Record(ctx context.Context, p Position) error {
	pipe := f.redis.TxPipeline()
	pipe.GeoAdd(ctx, deviceGeoKey, &redis.GeoLocation{
		Name:      p.DeviceID,
		Longitude: p.Point.Lng,
		Latitude:  p.Point.Lat,
	})
	pipe.HSet(ctx, deviceSeenKey, p.DeviceID, p.ObservedAt.UnixMilli())
	_, err := pipe.Exec(ctx)
	return err
}

func (f *RedisFeed) Latest(ctx context.Context, deviceID string) (Position, bool, error) {
	pos, err := f.redis.GeoPos(ctx, deviceGeoKey, deviceID).Result()
	if err != nil {
		return Position{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return Position{}, false, nil
	}
	seen, err := f.redis.HGet(ctx, deviceSeenKey, deviceID).Result()
	if err == redis.Nil {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, err
	}
	return Position{
		DeviceID:   deviceID,
		Point:      types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude},
		ObservedAt: parseMillis(seen),
	}, true, nil
}

func (f *RedisFeed) Within(ctx context.Context, center types.Point, radiusKm float64) ([]Position, error) {
	locs, err := f.redis.GeoSearchLocation(ctx, deviceGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, nil
	}
	names := make([]string, len(locs))
	for i, l := range locs {
		names[i] = l.Name
	}
	seen, err := f.redis.HMGet(ctx, deviceSeenKey, names...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(locs))
	for i, l := range locs {
		s, ok := seen[i].(string)
		if !ok {
			continue
		}
		out = append(out, Position{
			DeviceID:   l.Name,
			Point:      types.Point{Lat: l.Latitude, Lng: l.Longitude},
			ObservedAt: parseMillis(s),
			DistanceKm: l.Dist,
		})
	}
	return out, nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SnapshotStore appends every accepted fix to gps_positions.
type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) AppendSnapshot(ctx context.Context, p Position) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO gps_positions (device_id, lat, lng, observed_at)
		VALUES ($1, $2, $3, $4)`,
		p.DeviceID, p.Point.Lat, p.Point.Lng, p.ObservedAt,
	)
	return err
}
