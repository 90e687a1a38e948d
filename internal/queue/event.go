// Package queue defines message payloads exchanged over the message broker
// and the consumer for payment confirmations.
package queue

import "github.com/openride/bus-seat-reservation/internal/model"

// Queue names.  All queues are durable; producers and consumers declare
// them idempotently.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
	RefundIssuedQueue     = "refund.issued"
	PaymentConfirmedQueue = "payment.confirmed"
)

// BookingConfirmedEvent is published when a booking is paid and its seats
// booked.  It carries enough for downstream consumers (notifications,
// analytics) to act without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID   uint64   `json:"booking_id"`
	Code        string   `json:"code"`
	TripID      uint64   `json:"trip_id"`
	CustomerID  string   `json:"customer_id"`
	SeatNumbers []string `json:"seats"`
	TotalCents  uint32   `json:"total_cents"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled, with the
// refund amount (zero when none was due).
type BookingCancelledEvent struct {
	BookingID   uint64 `json:"booking_id"`
	Code        string `json:"code"`
	TripID      uint64 `json:"trip_id"`
	RefundCents uint32 `json:"refund_cents"`
	CancelledAt string `json:"cancelled_at"`
}

// RefundIssuedEvent is published when a refund record is created; the
// payment service consumes it to move the money.
type RefundIssuedEvent struct {
	BookingID   uint64           `json:"booking_id"`
	AmountCents uint32           `json:"amount_cents"`
	Type        model.RefundType `json:"type"`
	IssuedAt    string           `json:"issued_at"`
}

// PaymentConfirmedEvent is consumed from the payment gateway: the signal
// that a held booking has been paid for.
type PaymentConfirmedEvent struct {
	BookingID uint64 `json:"booking_id"`
	Reference string `json:"reference,omitempty"`
}
