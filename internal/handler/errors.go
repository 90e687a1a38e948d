// Package handler contains the HTTP handlers of the seat reservation API.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openride/bus-seat-reservation/internal/repository"
)

// fail maps a domain error to its HTTP response.  Sentinel errors from the
// repository and lock layers carry the status; anything unrecognized is a
// 500 with a generic body so internals never leak to clients.
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, repository.ErrSeatNotFound),
		errors.Is(err, repository.ErrBookingNotFound),
		errors.Is(err, repository.ErrTripNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, repository.ErrAlreadyBooked),
		errors.Is(err, repository.ErrLockedByOther),
		errors.Is(err, repository.ErrNotLocked),
		errors.Is(err, repository.ErrHoldExpired),
		errors.Is(err, repository.ErrInvalidBookingStatus):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, repository.ErrNotOwner),
		errors.Is(err, repository.ErrNotAuthorized):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, repository.ErrValidationFailed):
		status, msg = http.StatusBadRequest, err.Error()
	}
	return c.JSON(status, echo.Map{"error": msg})
}
