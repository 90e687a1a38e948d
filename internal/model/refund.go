package model

import "time"

// RefundStatus tracks the settlement state of a refund.  A refund row is
// immutable after creation except for this field.
type RefundStatus string

const (
	RefundPending  RefundStatus = "PENDING"
	RefundRefunded RefundStatus = "REFUNDED"
	RefundRejected RefundStatus = "REJECTED"
)

// RefundType distinguishes cancellation refunds, which follow the
// time-to-departure policy, from reschedule refunds, which settle the
// price difference between trips.
type RefundType string

const (
	RefundTypeCancellation RefundType = "CANCELLATION"
	RefundTypeReschedule   RefundType = "RESCHEDULE"
)

// Refund records money owed back to a customer for a cancelled or
// rescheduled paid booking.
type Refund struct {
	ID          uint64       `json:"id"`
	BookingID   uint64       `json:"booking_id"`
	AmountCents uint32       `json:"amount_cents"`
	Type        RefundType   `json:"type"`
	Reason      string       `json:"reason"`
	Status      RefundStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}
