package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openride/bus-seat-reservation/internal/repository"
	"github.com/openride/bus-seat-reservation/internal/seatmap"
)

// SeatmapHandler generates a trip's seat inventory from a bus layout.
// Operator-facing; routes wrapping it require an authenticated caller.
type SeatmapHandler struct {
	Gen   *seatmap.Generator
	Trips *repository.TripRepo
}

// NewSeatmapHandler constructs a SeatmapHandler.
func NewSeatmapHandler(gen *seatmap.Generator, trips *repository.TripRepo) *SeatmapHandler {
	if gen == nil || trips == nil {
		panic("nil dependency passed to NewSeatmapHandler")
	}
	return &SeatmapHandler{Gen: gen, Trips: trips}
}

// Generate handles POST /v1/trips/:trip_id/seatmap.  The body is the bus
// layout; set "regenerate": true to wipe and rebuild an existing map,
// which also discards any holds, so only do that before sales open.
func (h *SeatmapHandler) Generate(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	if _, err := h.Trips.GetByID(c.Request().Context(), tripID); err != nil {
		return fail(c, err)
	}
	var body struct {
		seatmap.Layout
		Regenerate bool `json:"regenerate"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	seats, err := h.Gen.Generate(c.Request().Context(), tripID, body.Layout, body.Regenerate)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"trip_id": tripID,
		"created": len(seats),
	})
}
