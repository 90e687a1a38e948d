package model

import "time"

// BookingStatus enumerates booking lifecycle states.
type BookingStatus string

const (
	BookingHeld        BookingStatus = "HELD"
	BookingPaid        BookingStatus = "PAID"
	BookingCancelled   BookingStatus = "CANCELLED"
	BookingRescheduled BookingStatus = "RESCHEDULED"
	BookingCompleted   BookingStatus = "COMPLETED"
	BookingExpired     BookingStatus = "EXPIRED"
)

// Booking groups one or more seats purchased together for a single trip.
// A booking is created HELD when a customer confirms a set of held seats
// and stays HELD until the payment gateway reports success; HoldUntil
// bounds how long an unpaid booking may keep its seats.  Bookings are
// never deleted so that refund history can always be audited.
type Booking struct {
	ID            uint64        `json:"id"`
	Code          string        `json:"code"`
	TripID        uint64        `json:"trip_id"`
	CustomerID    string        `json:"customer_id"`
	ContactName   string        `json:"contact_name,omitempty"`
	ContactPhone  string        `json:"contact_phone,omitempty"`
	TotalCents    uint32        `json:"total_cents"`
	ExtraFeeCents uint32        `json:"extra_fee_cents,omitempty"`
	Status        BookingStatus `json:"status"`
	HoldUntil     *time.Time    `json:"hold_until,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
