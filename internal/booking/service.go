// Package booking orchestrates the conversion of held seats into bookings,
// payment confirmation, cancellation with refunds, and reschedules.  Seat
// state is only ever touched through the lock manager's locked-access
// path; this package owns the booking/ticket/refund records around it.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"github.com/openride/bus-seat-reservation/internal/model"
	"github.com/openride/bus-seat-reservation/internal/queue"
	"github.com/openride/bus-seat-reservation/internal/repository"
)

// SeatLocker is the slice of the lock manager the orchestrator uses.  All
// methods run under the seats' exclusive row locks and are all-or-nothing
// across the listed seats.
type SeatLocker interface {
	ValidateHeld(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error)
	ConfirmAll(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error)
	BookAll(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error)
	Release(ctx context.Context, tripID, seatID uint64, ownerID string) (*model.Seat, error)
}

// SeatReader reads seat state without locking; used by Preview only.
type SeatReader interface {
	GetByTripAndIDs(ctx context.Context, tripID uint64, seatIDs []uint64) ([]model.Seat, error)
}

// BookingStore persists bookings and tickets.
type BookingStore interface {
	CreateWithTickets(ctx context.Context, b *model.Booking, tickets []model.Ticket) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	TicketsByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error)
	Transition(ctx context.Context, bookingID uint64, bs model.BookingStatus, ts model.TicketStatus) error
	ListExpiredHeld(ctx context.Context, now time.Time) ([]model.Booking, error)
}

// RefundStore persists and lists refund records.
type RefundStore interface {
	Create(ctx context.Context, ref *model.Refund) error
	ListByBooking(ctx context.Context, bookingID uint64) ([]model.Refund, error)
}

// TripStore looks up trips maintained by the scheduling service.
type TripStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Trip, error)
}

// EventPublisher pushes domain events to the message broker.  Failures are
// logged and ignored; the broker is a notification channel, not a ledger.
type EventPublisher interface {
	Publish(ctx context.Context, queueName string, payload any) error
}

// CustomerInfo carries the contact details attached to a booking; for
// guests this is the only identity on record.
type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SeatCheck is the per-seat outcome of a preview or a failed confirmation.
type SeatCheck struct {
	SeatID     uint64 `json:"seat_id"`
	SeatNumber string `json:"seat_number,omitempty"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
}

// Preview summarizes whether a set of seats can be confirmed right now.
type Preview struct {
	TripID     uint64      `json:"trip_id"`
	Seats      []SeatCheck `json:"seats"`
	AllHeld    bool        `json:"all_held"`
	TotalCents uint32      `json:"total_cents"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}

// Service is the booking orchestrator.
type Service struct {
	locker    SeatLocker
	seats     SeatReader
	bookings  BookingStore
	refunds   RefundStore
	trips     TripStore
	publisher EventPublisher
	holdFor   time.Duration // booking hold window (payment deadline)
	log       *logrus.Logger
	now       func() time.Time
}

// NewService wires the orchestrator.  holdFor is the booking hold window,
// the outer bound on how long a confirmed-but-unpaid booking keeps its
// seats (BOOKING_HOLD, 15 minutes by default).
func NewService(locker SeatLocker, seats SeatReader, bookings BookingStore, refunds RefundStore, trips TripStore, publisher EventPublisher, holdFor time.Duration, log *logrus.Logger) *Service {
	return &Service{
		locker:    locker,
		seats:     seats,
		bookings:  bookings,
		refunds:   refunds,
		trips:     trips,
		publisher: publisher,
		holdFor:   holdFor,
		log:       log,
		now:       time.Now,
	}
}

// Detail is a booking with its tickets and refund history.
type Detail struct {
	Booking *model.Booking `json:"booking"`
	Tickets []model.Ticket `json:"tickets"`
	Refunds []model.Refund `json:"refunds,omitempty"`
}

// Get loads a booking with its tickets and refunds.  Only the booking's
// customer may read it.
func (s *Service) Get(ctx context.Context, bookingID uint64, requesterID string) (*Detail, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != requesterID {
		return nil, repository.ErrNotAuthorized
	}
	tickets, err := s.bookings.TicketsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.refunds.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &Detail{Booking: b, Tickets: tickets, Refunds: refunds}, nil
}

// Preview reports, without mutating anything, whether each requested seat
// is a valid fresh hold owned by ownerID, along with the provisional total
// and the earliest hold expiry.  Callers use it to show a checkout summary
// before committing.
func (s *Service) Preview(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) (*Preview, error) {
	ids := dedupe(seatIDs)
	if len(ids) == 0 || ownerID == "" {
		return nil, repository.ErrValidationFailed
	}
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return nil, err
	}
	seats, err := s.seats.GetByTripAndIDs(ctx, tripID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]*model.Seat, len(seats))
	for i := range seats {
		byID[seats[i].ID] = &seats[i]
	}

	now := s.now().UTC()
	out := &Preview{TripID: tripID, AllHeld: true}
	var earliest *time.Time
	for _, id := range ids {
		seat, ok := byID[id]
		if !ok {
			out.Seats = append(out.Seats, SeatCheck{SeatID: id, Reason: "seat not found"})
			out.AllHeld = false
			continue
		}
		check := SeatCheck{SeatID: id, SeatNumber: seat.Number}
		switch {
		case seat.Status == model.SeatBooked:
			check.Reason = "already booked"
		case seat.Status != model.SeatHeld:
			check.Reason = "not held"
		case seat.HoldOwner != ownerID:
			check.Reason = "held by another customer"
		case !seat.FreshHold(now):
			check.Reason = "hold expired"
		default:
			check.OK = true
			out.TotalCents += seat.PriceCents
			if earliest == nil || seat.HoldUntil.Before(*earliest) {
				earliest = seat.HoldUntil
			}
		}
		if !check.OK {
			out.AllHeld = false
		}
		out.Seats = append(out.Seats, check)
	}
	out.ExpiresAt = earliest
	return out, nil
}

// Confirm turns a set of held seats into a HELD booking with one
// UNCONFIRMED ticket per seat.  Ownership of every seat is re-validated
// under the seats' row locks; any failing seat aborts the whole call with
// that seat's reason.  The seats stay HELD, since payment rather than
// confirmation books them; the booking's own hold window bounds how long
// that may take.
func (s *Service) Confirm(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string, customer CustomerInfo) (*model.Booking, error) {
	ids := dedupe(seatIDs)
	if len(ids) == 0 || ownerID == "" {
		return nil, repository.ErrValidationFailed
	}
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return nil, err
	}
	seats, err := s.locker.ValidateHeld(ctx, tripID, ids, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	holdUntil := now.Add(s.holdFor)
	b := &model.Booking{
		Code:         shortuuid.New(),
		TripID:       tripID,
		CustomerID:   ownerID,
		ContactName:  customer.Name,
		ContactPhone: customer.Phone,
		Status:       model.BookingHeld,
		HoldUntil:    &holdUntil,
	}
	tickets := make([]model.Ticket, 0, len(seats))
	for _, seat := range seats {
		b.TotalCents += seat.PriceCents
		tickets = append(tickets, model.Ticket{
			SeatID:     seat.ID,
			SeatNumber: seat.Number,
			PriceCents: seat.PriceCents,
			Status:     model.TicketUnconfirmed,
		})
	}
	if err := s.bookings.CreateWithTickets(ctx, b, tickets); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"booking_id":  b.ID,
		"code":        b.Code,
		"trip_id":     tripID,
		"customer_id": ownerID,
		"seats":       len(tickets),
		"total_cents": b.TotalCents,
	}).Info("booking created")
	return b, nil
}

// ProcessPayment reacts to the payment gateway's success signal: the
// booking becomes PAID, its tickets CONFIRMED, and every seat transitions
// HELD→BOOKED through the lock manager in one transaction.  If any seat's
// hold lapsed in the meantime the whole call fails and nothing moves; no
// partially booked bookings.
func (s *Service) ProcessPayment(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == model.BookingPaid {
		return b, nil // duplicate gateway callback
	}
	if b.Status != model.BookingHeld {
		return nil, fmt.Errorf("%w: cannot pay %s booking", repository.ErrInvalidBookingStatus, b.Status)
	}
	tickets, err := s.bookings.TicketsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	seatIDs := make([]uint64, 0, len(tickets))
	for _, t := range tickets {
		seatIDs = append(seatIDs, t.SeatID)
	}

	seats, err := s.locker.ConfirmAll(ctx, b.TripID, seatIDs, b.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := s.bookings.Transition(ctx, bookingID, model.BookingPaid, model.TicketConfirmed); err != nil {
		// Seats are booked but the booking row lagged behind; the gateway
		// retries its callback and the transition is idempotent.
		s.log.WithField("booking_id", bookingID).WithError(err).Error("payment: booking transition failed after seats booked")
		return nil, err
	}

	numbers := make([]string, 0, len(seats))
	for _, seat := range seats {
		numbers = append(numbers, seat.Number)
	}
	s.emit(ctx, queue.BookingConfirmedQueue, queue.BookingConfirmedEvent{
		BookingID:   b.ID,
		Code:        b.Code,
		TripID:      b.TripID,
		CustomerID:  b.CustomerID,
		SeatNumbers: numbers,
		TotalCents:  b.TotalCents,
		ConfirmedAt: s.now().UTC().Format(time.RFC3339),
	})
	return s.bookings.GetByID(ctx, bookingID)
}

// Cancel cancels a HELD or PAID booking owned by requesterID, releases all
// of its seats through the lock manager, and for paid bookings records a
// refund per the time-to-departure policy when the amount is nonzero.
func (s *Service) Cancel(ctx context.Context, bookingID uint64, requesterID string) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != requesterID {
		return nil, repository.ErrNotAuthorized
	}
	if b.Status != model.BookingHeld && b.Status != model.BookingPaid {
		return nil, fmt.Errorf("%w: cannot cancel %s booking", repository.ErrInvalidBookingStatus, b.Status)
	}
	wasPaid := b.Status == model.BookingPaid

	if err := s.releaseSeats(ctx, b); err != nil {
		return nil, err
	}
	if err := s.bookings.Transition(ctx, bookingID, model.BookingCancelled, model.TicketCancelled); err != nil {
		return nil, err
	}

	var refundCents uint32
	if wasPaid {
		trip, err := s.trips.GetByID(ctx, b.TripID)
		if err != nil {
			return nil, err
		}
		refundCents = CancellationRefund(b.TotalCents, trip.DepartureAt, s.now().UTC())
		if refundCents > 0 {
			ref := &model.Refund{
				BookingID:   b.ID,
				AmountCents: refundCents,
				Type:        model.RefundTypeCancellation,
				Reason:      fmt.Sprintf("cancelled %s before departure", trip.DepartureAt.Sub(s.now().UTC()).Round(time.Minute)),
			}
			if err := s.refunds.Create(ctx, ref); err != nil {
				return nil, err
			}
			s.emit(ctx, queue.RefundIssuedQueue, queue.RefundIssuedEvent{
				BookingID:   b.ID,
				AmountCents: refundCents,
				Type:        model.RefundTypeCancellation,
				IssuedAt:    s.now().UTC().Format(time.RFC3339),
			})
		}
	}
	s.emit(ctx, queue.BookingCancelledQueue, queue.BookingCancelledEvent{
		BookingID:   b.ID,
		Code:        b.Code,
		TripID:      b.TripID,
		RefundCents: refundCents,
		CancelledAt: s.now().UTC().Format(time.RFC3339),
	})
	return s.bookings.GetByID(ctx, bookingID)
}

// Reschedule moves a paid booking to different seats, possibly on another
// trip.  Allowed only twelve hours or more before the old trip departs.
// The old booking and tickets become RESCHEDULED (not CANCELLED, so the
// history reads correctly), its seats are freed, and a new PAID booking is
// created.  A cheaper new trip produces a RESCHEDULE refund for the
// difference; a costlier one records the difference as an extra fee on the
// new booking; collecting it is the payment service's problem.
func (s *Service) Reschedule(ctx context.Context, oldBookingID, newTripID uint64, newSeatIDs []uint64, requesterID string) (*model.Booking, error) {
	ids := dedupe(newSeatIDs)
	if len(ids) == 0 {
		return nil, repository.ErrValidationFailed
	}
	old, err := s.bookings.GetByID(ctx, oldBookingID)
	if err != nil {
		return nil, err
	}
	if old.CustomerID != requesterID {
		return nil, repository.ErrNotAuthorized
	}
	if old.Status != model.BookingPaid {
		return nil, fmt.Errorf("%w: only paid bookings can be rescheduled", repository.ErrInvalidBookingStatus)
	}
	oldTrip, err := s.trips.GetByID(ctx, old.TripID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if oldTrip.DepartureAt.Sub(now) < halfRefundBefore {
		return nil, fmt.Errorf("%w: less than 12h before departure", repository.ErrInvalidBookingStatus)
	}
	if _, err := s.trips.GetByID(ctx, newTripID); err != nil {
		return nil, err
	}

	newSeats, err := s.locker.BookAll(ctx, newTripID, ids, requesterID)
	if err != nil {
		return nil, err
	}
	if err := s.releaseSeats(ctx, old); err != nil {
		return nil, err
	}
	if err := s.bookings.Transition(ctx, oldBookingID, model.BookingRescheduled, model.TicketRescheduled); err != nil {
		return nil, err
	}

	nb := &model.Booking{
		Code:         shortuuid.New(),
		TripID:       newTripID,
		CustomerID:   old.CustomerID,
		ContactName:  old.ContactName,
		ContactPhone: old.ContactPhone,
		Status:       model.BookingPaid,
	}
	tickets := make([]model.Ticket, 0, len(newSeats))
	numbers := make([]string, 0, len(newSeats))
	for _, seat := range newSeats {
		nb.TotalCents += seat.PriceCents
		numbers = append(numbers, seat.Number)
		tickets = append(tickets, model.Ticket{
			SeatID:     seat.ID,
			SeatNumber: seat.Number,
			PriceCents: seat.PriceCents,
			Status:     model.TicketConfirmed,
		})
	}
	if nb.TotalCents > old.TotalCents {
		nb.ExtraFeeCents = nb.TotalCents - old.TotalCents
	}
	if err := s.bookings.CreateWithTickets(ctx, nb, tickets); err != nil {
		return nil, err
	}

	if nb.TotalCents < old.TotalCents {
		diff := old.TotalCents - nb.TotalCents
		ref := &model.Refund{
			BookingID:   old.ID,
			AmountCents: diff,
			Type:        model.RefundTypeReschedule,
			Reason:      fmt.Sprintf("rescheduled to cheaper trip %d", newTripID),
		}
		if err := s.refunds.Create(ctx, ref); err != nil {
			return nil, err
		}
		s.emit(ctx, queue.RefundIssuedQueue, queue.RefundIssuedEvent{
			BookingID:   old.ID,
			AmountCents: diff,
			Type:        model.RefundTypeReschedule,
			IssuedAt:    now.Format(time.RFC3339),
		})
	}
	s.emit(ctx, queue.BookingConfirmedQueue, queue.BookingConfirmedEvent{
		BookingID:   nb.ID,
		Code:        nb.Code,
		TripID:      nb.TripID,
		CustomerID:  nb.CustomerID,
		SeatNumbers: numbers,
		TotalCents:  nb.TotalCents,
		ConfirmedAt: now.Format(time.RFC3339),
	})
	s.log.WithFields(logrus.Fields{
		"old_booking_id": old.ID,
		"new_booking_id": nb.ID,
		"new_trip_id":    newTripID,
		"extra_fee":      nb.ExtraFeeCents,
	}).Info("booking rescheduled")
	return nb, nil
}

// ExpireBooking abandons a HELD booking whose payment window lapsed:
// seats go back to AVAILABLE, the booking becomes EXPIRED and its tickets
// CANCELLED.  Called by the booking sweeper.
func (s *Service) ExpireBooking(ctx context.Context, b *model.Booking) error {
	if b.Status != model.BookingHeld {
		return nil
	}
	if err := s.releaseSeats(ctx, b); err != nil {
		return err
	}
	return s.bookings.Transition(ctx, b.ID, model.BookingExpired, model.TicketCancelled)
}

// releaseSeats frees every seat of a booking through the lock manager.
// Seats that are already available, or that someone else has since claimed,
// are skipped; only infrastructure errors abort.
func (s *Service) releaseSeats(ctx context.Context, b *model.Booking) error {
	tickets, err := s.bookings.TicketsByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		_, err := s.locker.Release(ctx, b.TripID, t.SeatID, b.CustomerID)
		if err != nil && !errors.Is(err, repository.ErrNotLocked) && !errors.Is(err, repository.ErrNotOwner) {
			return fmt.Errorf("release seat %s: %w", t.SeatNumber, err)
		}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, queueName string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, queueName, payload); err != nil {
		s.log.WithField("queue", queueName).WithError(err).Warn("event publish failed")
	}
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
