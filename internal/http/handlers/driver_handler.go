// README: Driver handlers for starting and ending a trip.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/modules/order"
)

type DriverHandler struct {
	order *order.Service
}

func NewDriverHandler(svc *order.Service) *DriverHandler {
	return &DriverHandler{order: svc}
}

func (h *DriverHandler) Start(c *gin.Context) {
	h.trip(c, h.order.StartTrip)
}

func (h *DriverHandler) End(c *gin.Context) {
	h.trip(c, h.order.EndTrip)
}

func (h *DriverHandler) trip(c *gin.Context, move func(context.Context, order.TripCommand) (*order.Order, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := move(c.Request.Context(), order.TripCommand{Actor: caller(c), OrderID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
