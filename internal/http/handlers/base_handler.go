// README: Base handler utilities (JSON helpers, caller lookup, error mapping).
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/http/middleware"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/catalog"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/location"
	"fuelhaul/internal/modules/matching"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the uuid and provider uid shapes used for ids.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads the :id parameter, writing a 400 when it is malformed.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return "", false
	}
	return types.ID(id), true
}

// bind decodes the JSON body into v, writing a 400 on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func caller(c *gin.Context) policy.Actor {
	return middleware.Actor(c)
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = "internal error"
	}
	writeJSON(c, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, order.ErrValidation),
		errors.Is(err, fleet.ErrValidation),
		errors.Is(err, catalog.ErrValidation),
		errors.Is(err, account.ErrValidation),
		errors.Is(err, location.ErrInvalidPosition):
		return http.StatusBadRequest
	case errors.Is(err, policy.ErrForbidden), errors.Is(err, fleet.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, fleet.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, notify.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidState),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, fleet.ErrInvalidState),
		errors.Is(err, fleet.ErrDriverUnavailable),
		errors.Is(err, fleet.ErrVehicleUnavailable),
		errors.Is(err, fleet.ErrDuplicate),
		errors.Is(err, catalog.ErrDuplicate),
		errors.Is(err, matching.ErrLockTimeout):
		return http.StatusConflict
	case errors.Is(err, order.ErrAllocationOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
