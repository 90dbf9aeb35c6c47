// README: Truck-owner handlers: requested orders, accept, driver assignment.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/types"
)

type OwnerHandler struct {
	order *order.Service
}

func NewOwnerHandler(svc *order.Service) *OwnerHandler {
	return &OwnerHandler{order: svc}
}

func (h *OwnerHandler) Requested(c *gin.Context) {
	orders, err := h.order.RequestedForOwner(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

type acceptReq struct {
	VehicleID string `json:"vehicle_id"`
}

func (h *OwnerHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req acceptReq
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	cmd := order.AcceptCommand{Actor: caller(c), OrderID: id}
	if req.VehicleID != "" {
		if !isValidID(req.VehicleID) {
			writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid vehicle_id"})
			return
		}
		v := types.ID(req.VehicleID)
		cmd.VehicleID = &v
	}
	o, err := h.order.Accept(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type assignReq struct {
	DriverID string `json:"driver_id"`
}

func (h *OwnerHandler) Assign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req assignReq
	if !bind(c, &req) {
		return
	}
	if !isValidID(req.DriverID) {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "missing driver_id"})
		return
	}
	o, err := h.order.AssignDriver(c.Request.Context(), order.AssignCommand{
		Actor:    caller(c),
		OrderID:  id,
		DriverID: types.ID(req.DriverID),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
