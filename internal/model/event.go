package model

import "time"

// SeatEventType labels the transition that produced a broadcast event.
type SeatEventType string

const (
	EventLocked   SeatEventType = "locked"
	EventUnlocked SeatEventType = "unlocked"
	EventBooked   SeatEventType = "booked"
	EventExpired  SeatEventType = "expired"
)

// SeatEvent is published on a trip's topic after every committed seat
// transition.  Delivery is best-effort: observers must treat it as a cue to
// re-fetch or apply-if-newer, never as the source of truth.
type SeatEvent struct {
	Type       SeatEventType `json:"type"`
	TripID     uint64        `json:"trip_id"`
	SeatID     uint64        `json:"seat_id"`
	SeatNumber string        `json:"seat_number"`
	Floor      int           `json:"floor"`
	Status     SeatStatus    `json:"status"`
	Owner      string        `json:"owner,omitempty"`
	HoldUntil  *time.Time    `json:"hold_until,omitempty"`
	At         time.Time     `json:"at"`
}
