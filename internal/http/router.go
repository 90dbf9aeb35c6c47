// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/http/handlers"
	"fuelhaul/internal/http/middleware"
	"fuelhaul/internal/infra"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/catalog"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/location"
	"fuelhaul/internal/modules/matching"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/modules/order"
)

type RouterDeps struct {
	Order    *order.Service
	Matching *matching.Service
	Fleet    *fleet.Service
	Catalog  *catalog.Service
	Accounts *account.Service
	Location *location.Service
	Notify   *notify.Dispatcher
	Verifier infra.TokenVerifier
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(d.Verifier))

	orders := handlers.NewOrderHandler(d.Order, d.Matching)
	api.POST("/orders/private", orders.PlacePrivate)
	api.POST("/orders/shared", orders.PlaceShared)
	api.GET("/orders/:id", orders.Get)
	api.POST("/orders/:id/cancel", orders.Cancel)

	owner := handlers.NewOwnerHandler(d.Order)
	api.GET("/owner/orders", owner.Requested)
	api.POST("/owner/orders/:id/accept", owner.Accept)
	api.POST("/owner/orders/:id/assign", owner.Assign)

	driver := handlers.NewDriverHandler(d.Order)
	api.POST("/driver/orders/:id/start", driver.Start)
	api.POST("/driver/orders/:id/end", driver.End)

	fleetHandler := handlers.NewFleetHandler(d.Fleet)
	api.POST("/vehicles", fleetHandler.RegisterVehicle)
	api.POST("/vehicles/:id/review", fleetHandler.ReviewVehicle)
	api.POST("/drivers", fleetHandler.RegisterDriver)
	api.POST("/drivers/:id/verify", fleetHandler.VerifyDriver)

	locationHandler := handlers.NewLocationHandler(d.Location, d.Fleet)
	api.PUT("/vehicles/:id/position", locationHandler.Update)

	accounts := handlers.NewAccountHandler(d.Accounts, d.Catalog, d.Notify)
	api.POST("/stations", accounts.RegisterStation)
	api.GET("/messages", accounts.Unread)
	api.POST("/messages/:id/read", accounts.MarkRead)
	api.PUT("/me", accounts.SaveProfile)

	return r
}
