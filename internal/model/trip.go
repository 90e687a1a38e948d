package model

import "time"

// Trip is the slice of trip data this subsystem needs: existence checks,
// departure time for the refund policy, and a display name.  Trip CRUD and
// scheduling live outside this service.
type Trip struct {
	ID          uint64    `json:"id"`
	RouteName   string    `json:"route_name"`
	DepartureAt time.Time `json:"departure_at"`
}
