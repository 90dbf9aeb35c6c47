// README: Customer order handlers: private and shared placement, lookup, cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/modules/matching"
	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/types"
)

type OrderHandler struct {
	order    *order.Service
	matching *matching.Service
}

func NewOrderHandler(orderSvc *order.Service, matchingSvc *matching.Service) *OrderHandler {
	return &OrderHandler{order: orderSvc, matching: matchingSvc}
}

type placeOrderReq struct {
	FuelType     string      `json:"fuel_type"`
	Capacity     int64       `json:"capacity"`
	Depot        string      `json:"depot"`
	Source       string      `json:"source"`
	Company      string      `json:"company"`
	Station      string      `json:"station"`
	District     string      `json:"district"`
	Price        types.Money `json:"price"`
	DistanceKm   float64     `json:"distance_km"`
	DeliveryTime *time.Time  `json:"delivery_time"`
}

func (r placeOrderReq) command(c *gin.Context) matching.PlaceCommand {
	return matching.PlaceCommand{
		Actor:        caller(c),
		FuelType:     r.FuelType,
		Capacity:     r.Capacity,
		Depot:        r.Depot,
		Source:       r.Source,
		Company:      r.Company,
		Station:      r.Station,
		District:     r.District,
		Price:        r.Price,
		DistanceKm:   r.DistanceKm,
		DeliveryTime: r.DeliveryTime,
	}
}

func (h *OrderHandler) PlacePrivate(c *gin.Context) {
	var req placeOrderReq
	if !bind(c, &req) {
		return
	}
	p, err := h.matching.PlacePrivate(c.Request.Context(), req.command(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writePlacement(c, p)
}

func (h *OrderHandler) PlaceShared(c *gin.Context) {
	var req placeOrderReq
	if !bind(c, &req) {
		return
	}
	p, err := h.matching.PlaceShared(c.Request.Context(), req.command(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writePlacement(c, p)
}

// writePlacement answers 201 when an order was stored, 200 for a placement
// that only carries a capacity hint.
func writePlacement(c *gin.Context, p *matching.Placement) {
	status := http.StatusCreated
	if p.Order == nil {
		status = http.StatusOK
	}
	writeJSON(c, status, p)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		Actor:   caller(c),
		OrderID: id,
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
