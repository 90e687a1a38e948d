package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openride/bus-seat-reservation/internal/booking"
	"github.com/openride/bus-seat-reservation/internal/middleware"
)

// BookingHandler exposes the booking lifecycle: preview, confirmation,
// payment, cancellation and reschedule.
type BookingHandler struct {
	Svc *booking.Service
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc *booking.Service) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Svc: svc}
}

type seatSelection struct {
	SeatIDs []uint64 `json:"seat_ids"`
}

// Preview handles POST /v1/trips/:trip_id/bookings/preview.  Read-only
// checkout summary: per-seat hold validity, provisional total and the
// earliest hold expiry.
func (h *BookingHandler) Preview(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	var body seatSelection
	if err := c.Bind(&body); err != nil || len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
	}
	p, err := h.Svc.Preview(c.Request().Context(), tripID, body.SeatIDs, ownerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Create handles POST /v1/trips/:trip_id/bookings.  Converts the caller's
// held seats into a HELD booking awaiting payment.
func (h *BookingHandler) Create(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	var body struct {
		SeatIDs  []uint64             `json:"seat_ids"`
		Customer booking.CustomerInfo `json:"customer"`
	}
	if err := c.Bind(&body); err != nil || len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
	}
	b, err := h.Svc.Confirm(c.Request().Context(), tripID, body.SeatIDs, ownerID, body.Customer)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Get handles GET /v1/bookings/:id, returning the booking with its
// tickets and refund history.
func (h *BookingHandler) Get(c echo.Context) error {
	bookingID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	d, err := h.Svc.Get(c.Request().Context(), bookingID, ownerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Payment handles POST /v1/bookings/:id/payment.  In production the
// payment gateway's confirmation arrives on the message queue; this
// endpoint is the synchronous variant for gateways that call back over
// HTTP and for manual settlement.
func (h *BookingHandler) Payment(c echo.Context) error {
	bookingID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.Svc.ProcessPayment(c.Request().Context(), bookingID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles DELETE /v1/bookings/:id.  Only the booking's customer may
// cancel; paid bookings are refunded per the time-to-departure policy.
func (h *BookingHandler) Cancel(c echo.Context) error {
	bookingID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	b, err := h.Svc.Cancel(c.Request().Context(), bookingID, ownerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Reschedule handles POST /v1/bookings/:id/reschedule.  Moves a paid
// booking to new seats, possibly on a different trip; allowed until twelve
// hours before the original departure.
func (h *BookingHandler) Reschedule(c echo.Context) error {
	bookingID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required: send a bearer token or X-Guest-ID header"})
	}
	var body struct {
		TripID  uint64   `json:"trip_id"`
		SeatIDs []uint64 `json:"seat_ids"`
	}
	if err := c.Bind(&body); err != nil || body.TripID == 0 || len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "trip_id and seat_ids are required"})
	}
	nb, err := h.Svc.Reschedule(c.Request().Context(), bookingID, body.TripID, body.SeatIDs, ownerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, nb)
}
