// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"fixit/internal/http/middleware"
	"fixit/internal/modules/booking"
	"fixit/internal/modules/location"
	"fixit/internal/modules/worker"
	"fixit/internal/types"
)

type errorResponse struct {
	Error  string `json:"error"`
	Actual string `json:"actual_status,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module errors onto HTTP status codes.
func writeDomainError(c *gin.Context, err error) {
	var conflict *booking.ConflictError
	var geoErr *location.GeolocationError
	switch {
	case errors.As(err, &conflict):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Actual: string(conflict.Actual)})
	case errors.Is(err, booking.ErrConflict), errors.Is(err, location.ErrAlreadyStarted), errors.Is(err, location.ErrNotTracking):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrValidation), errors.Is(err, worker.ErrValidation), errors.Is(err, location.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, worker.ErrNotFound), errors.Is(err, location.ErrNoSample):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.As(err, &geoErr):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		log.Printf("http: %s %s: %v", c.Request.Method, c.FullPath(), err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// bookingID reads the :id path parameter; booking ids are UUIDs.
func bookingID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !types.ValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return "", false
	}
	return types.ID(id), true
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

// bindOptionalJSON decodes the body when present; an empty body leaves v untouched.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
