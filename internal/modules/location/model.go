// README: Device position records from the GPS feed.
package location

import (
	"time"

	"fuelhaul/internal/types"
)

// Position is the most recent fix reported by a tracking device.
type Position struct {
	DeviceID   string      `json:"device_id"`
	Point      types.Point `json:"point"`
	ObservedAt time.Time   `json:"observed_at"`
	// DistanceKm is populated by radius queries.
	DistanceKm float64 `json:"distance_km,omitempty"`
}
