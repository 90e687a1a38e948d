package model

// TicketStatus mirrors the owning booking's status at seat granularity.
type TicketStatus string

const (
	TicketUnconfirmed TicketStatus = "UNCONFIRMED"
	TicketConfirmed   TicketStatus = "CONFIRMED"
	TicketCancelled   TicketStatus = "CANCELLED"
	TicketRescheduled TicketStatus = "RESCHEDULED"
	TicketUsed        TicketStatus = "USED"
)

// Ticket is one seat within a booking, priced at the seat's rate when the
// booking was confirmed.
type Ticket struct {
	ID         uint64       `json:"id"`
	BookingID  uint64       `json:"booking_id"`
	SeatID     uint64       `json:"seat_id"`
	SeatNumber string       `json:"seat_number"`
	PriceCents uint32       `json:"price_cents"`
	Status     TicketStatus `json:"status"`
}
