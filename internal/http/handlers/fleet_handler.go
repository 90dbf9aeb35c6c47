// README: Vehicle and driver roster handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/fleet"
)

type FleetHandler struct {
	fleet *fleet.Service
}

func NewFleetHandler(svc *fleet.Service) *FleetHandler {
	return &FleetHandler{fleet: svc}
}

type registerVehicleReq struct {
	PlateNumber      string                   `json:"plate_number"`
	DeviceID         string                   `json:"device_id"`
	TankCapacity     int64                    `json:"tank_capacity"`
	CompartmentCount int                      `json:"compartment_count"`
	Compartments     []allocation.Compartment `json:"compartments"`
}

func (h *FleetHandler) RegisterVehicle(c *gin.Context) {
	var req registerVehicleReq
	if !bind(c, &req) {
		return
	}
	v, err := h.fleet.RegisterVehicle(c.Request.Context(), fleet.RegisterVehicleCommand{
		Actor:            caller(c),
		PlateNumber:      req.PlateNumber,
		DeviceID:         req.DeviceID,
		TankCapacity:     req.TankCapacity,
		CompartmentCount: req.CompartmentCount,
		Compartments:     req.Compartments,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, v)
}

type reviewReq struct {
	Approve *bool `json:"approve"`
}

func (h *FleetHandler) ReviewVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reviewReq
	if !bind(c, &req) {
		return
	}
	if req.Approve == nil {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "missing approve"})
		return
	}
	v, err := h.fleet.ReviewVehicle(c.Request.Context(), caller(c), id, *req.Approve)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

type registerDriverReq struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"license_number"`
}

func (h *FleetHandler) RegisterDriver(c *gin.Context) {
	var req registerDriverReq
	if !bind(c, &req) {
		return
	}
	d, err := h.fleet.RegisterDriver(c.Request.Context(), fleet.RegisterDriverCommand{
		Actor:         caller(c),
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		LicenseNumber: req.LicenseNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *FleetHandler) VerifyDriver(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.fleet.VerifyDriver(c.Request.Context(), caller(c), id); err != nil {
		writeError(c, err)
		return
	}
	d, err := h.fleet.Driver(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}
