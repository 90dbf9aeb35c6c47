// README: Vehicle position handler; fixes are stored under the vehicle's tracker id.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/location"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

type LocationHandler struct {
	location *location.Service
	fleet    *fleet.Service
}

func NewLocationHandler(locationSvc *location.Service, fleetSvc *fleet.Service) *LocationHandler {
	return &LocationHandler{location: locationSvc, fleet: fleetSvc}
}

type positionReq struct {
	Lat        *float64  `json:"lat"`
	Lng        *float64  `json:"lng"`
	ObservedAt time.Time `json:"observed_at"`
}

// Update records a fix for a vehicle. Owners may only report their own
// vehicles; the GPS gateway reports as the system role.
func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req positionReq
	if !bind(c, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "lat and lng are required"})
		return
	}
	actor := caller(c)
	if err := policy.Authorize(actor, policy.CapReportPosition); err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	var (
		v   *fleet.Vehicle
		err error
	)
	if actor.Role == policy.RoleSystem {
		v, err = h.fleet.Vehicle(ctx, id)
	} else {
		v, err = h.fleet.OwnedVehicle(ctx, actor.ID, id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	err = h.location.Record(ctx, location.Update{
		DeviceID:   v.TrackerID(),
		Point:      types.Point{Lat: *req.Lat, Lng: *req.Lng},
		ObservedAt: req.ObservedAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "device_id": v.TrackerID()})
}
