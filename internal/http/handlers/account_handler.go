// README: Caller profile, unread inbox, and customer station handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/catalog"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/types"
)

type AccountHandler struct {
	accounts *account.Service
	catalog  *catalog.Service
	inbox    *notify.Dispatcher
}

func NewAccountHandler(accounts *account.Service, catalogSvc *catalog.Service, inbox *notify.Dispatcher) *AccountHandler {
	return &AccountHandler{accounts: accounts, catalog: catalogSvc, inbox: inbox}
}

type profileReq struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	DeviceToken string `json:"device_token"`
}

func (h *AccountHandler) SaveProfile(c *gin.Context) {
	var req profileReq
	if !bind(c, &req) {
		return
	}
	u, err := h.accounts.SaveProfile(c.Request.Context(), account.ProfileCommand{
		Actor:       caller(c),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

func (h *AccountHandler) Unread(c *gin.Context) {
	msgs, err := h.inbox.Unread(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*notify.Message{}
	}
	writeJSON(c, http.StatusOK, gin.H{"messages": msgs})
}

func (h *AccountHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), caller(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type stationReq struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Region   string      `json:"region"`
	District string      `json:"district"`
	Location types.Point `json:"location"`
}

func (h *AccountHandler) RegisterStation(c *gin.Context) {
	var req stationReq
	if !bind(c, &req) {
		return
	}
	st, err := h.catalog.RegisterStation(c.Request.Context(), catalog.RegisterStationCommand{
		Actor:    caller(c),
		Name:     req.Name,
		Label:    req.Label,
		Region:   req.Region,
		District: req.District,
		Location: req.Location,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, st)
}
