package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openride/bus-seat-reservation/internal/lock"
	"github.com/openride/bus-seat-reservation/internal/middleware"
	"github.com/openride/bus-seat-reservation/internal/repository"
)

// SeatHandler exposes the seat map and the lock protocol: lock, unlock and
// confirm on a single seat.  Identity comes from the JWT subject or the
// X-Guest-ID header; requests with neither are rejected, an anonymous hold
// could never be released or confirmed by the same caller again.
type SeatHandler struct {
	Mgr   *lock.Manager
	Seats *repository.SeatRepo
}

// NewSeatHandler constructs a SeatHandler.
func NewSeatHandler(mgr *lock.Manager, seats *repository.SeatRepo) *SeatHandler {
	if mgr == nil || seats == nil {
		panic("nil dependency passed to NewSeatHandler")
	}
	return &SeatHandler{Mgr: mgr, Seats: seats}
}

// ListSeats handles GET /v1/trips/:trip_id/seats.  Returns the full seat
// map of the trip; clients render this once and then follow the event
// stream for live transitions.
func (h *SeatHandler) ListSeats(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	seats, err := h.Seats.GetByTrip(c.Request().Context(), tripID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": tripID, "seats": seats})
}

// Lock handles POST /v1/trips/:trip_id/seats/:seat_id/lock.  The optional
// JSON body carries the connection_id of the caller's event stream so a
// disconnect releases the hold early.  Re-locking an own hold refreshes
// its expiry.
func (h *SeatHandler) Lock(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	seatID, err := pathID(c, "seat_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	var body struct {
		ConnectionID string `json:"connection_id"`
	}
	_ = c.Bind(&body) // body is optional

	seat, err := h.Mgr.Lock(c.Request().Context(), tripID, seatID, ownerID, body.ConnectionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"seat":       seat,
		"expires_at": seat.HoldUntil.Format(time.RFC3339),
	})
}

// Unlock handles POST /v1/trips/:trip_id/seats/:seat_id/unlock.
func (h *SeatHandler) Unlock(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	seatID, err := pathID(c, "seat_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	seat, err := h.Mgr.Unlock(c.Request().Context(), tripID, seatID, ownerID, "")
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seat": seat})
}

// Confirm handles POST /v1/trips/:trip_id/seats/:seat_id/confirm, booking
// a single held seat directly.  Multi-seat checkouts go through the
// booking endpoints instead; this is the quick path for one seat.
func (h *SeatHandler) Confirm(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	seatID, err := pathID(c, "seat_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	seat, err := h.Mgr.Confirm(c.Request().Context(), tripID, seatID, ownerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seat": seat})
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.ErrBadRequest
	}
	return id, nil
}
