// Package router registers the HTTP routes of the seat reservation API.
package router

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/openride/bus-seat-reservation/internal/handler"
	"github.com/openride/bus-seat-reservation/internal/middleware"
)

// Handlers bundles everything the route table needs.
type Handlers struct {
	Seats    *handler.SeatHandler
	Stream   *handler.StreamHandler
	Bookings *handler.BookingHandler
	Seatmap  *handler.SeatmapHandler
}

// RateLimitConfig tunes the fixed-window limiter on the lock endpoints.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Register wires all routes.  Authentication is optional everywhere:
// guests identify themselves with X-Guest-ID, logged-in customers with a
// bearer token, and OptionalJWT rejects only tokens that are present but
// invalid.  The lock endpoints additionally carry a per-identity rate
// limit so one client cannot cycle holds across the whole bus.
func Register(e *echo.Echo, h Handlers, jwtSecret string, rdb *redis.Client, rl RateLimitConfig) {
	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1", middleware.OptionalJWT(jwtSecret))

	limited := v1.Group("", middleware.RateLimit(rdb, rl.Requests, rl.Window))
	limited.POST("/trips/:trip_id/seats/:seat_id/lock", h.Seats.Lock)
	limited.POST("/trips/:trip_id/seats/:seat_id/unlock", h.Seats.Unlock)
	limited.POST("/trips/:trip_id/seats/:seat_id/confirm", h.Seats.Confirm)

	v1.GET("/trips/:trip_id/seats", h.Seats.ListSeats)
	v1.GET("/trips/:trip_id/seats/stream", h.Stream.Stream)
	v1.POST("/connections/:id/release", h.Stream.ReleaseConnection)

	v1.POST("/trips/:trip_id/bookings/preview", h.Bookings.Preview)
	v1.POST("/trips/:trip_id/bookings", h.Bookings.Create)
	v1.GET("/bookings/:id", h.Bookings.Get)
	v1.POST("/bookings/:id/payment", h.Bookings.Payment)
	v1.DELETE("/bookings/:id", h.Bookings.Cancel)
	v1.POST("/bookings/:id/reschedule", h.Bookings.Reschedule)

	v1.POST("/trips/:trip_id/seatmap", h.Seatmap.Generate)
}
