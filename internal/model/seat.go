package model

import "time"

// SeatStatus enumerates the lifecycle states of a trip seat.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatBooked    SeatStatus = "BOOKED"
)

// Seat is one physical seat on one trip.  A row exists for every seat of a
// trip from the moment the trip's seat map is generated until the trip is
// removed.  HoldOwner, HoldConn and HoldUntil are set together while the
// seat is HELD; a BOOKED seat keeps HoldOwner as the holder reference but
// carries no connection or expiry.
//
// Fields:
//
//	ID         – primary key identifier.
//	TripID     – trip to which this seat belongs.
//	Number     – label such as "A1" or "B17", unique within the trip.
//	Floor      – one-based floor number on the vehicle.
//	Class      – seat class (STANDARD, VIP, SLEEPER).
//	PriceCents – price for this seat on this trip.
//	Status     – AVAILABLE, HELD or BOOKED.
//	HoldOwner  – customer or guest identity that placed the hold.
//	HoldConn   – real-time connection through which the hold was placed.
//	HoldUntil  – when the hold lapses; nil unless HELD.
type Seat struct {
	ID         uint64     `json:"id"`
	TripID     uint64     `json:"trip_id"`
	Number     string     `json:"number"`
	Floor      int        `json:"floor"`
	Class      string     `json:"class"`
	PriceCents uint32     `json:"price_cents"`
	Status     SeatStatus `json:"status"`
	HoldOwner  string     `json:"hold_owner,omitempty"`
	HoldConn   string     `json:"-"`
	HoldUntil  *time.Time `json:"hold_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FreshHold reports whether the seat carries a hold that has not lapsed yet.
// A stale hold is logically equivalent to no hold at all.
func (s *Seat) FreshHold(now time.Time) bool {
	return s.Status == SeatHeld && s.HoldUntil != nil && now.Before(*s.HoldUntil)
}

// ClearHold returns the seat to AVAILABLE and wipes all hold bookkeeping.
func (s *Seat) ClearHold() {
	s.Status = SeatAvailable
	s.HoldOwner = ""
	s.HoldConn = ""
	s.HoldUntil = nil
}
