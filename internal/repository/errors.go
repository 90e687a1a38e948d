// Package repository defines the sentinel errors shared by the data access
// layer and the locking/booking services built on top of it. Higher layers
// match them with errors.Is to pick status codes and user-facing reasons,
// so service code must return them unwrapped or wrapped with %w.
package repository

import "errors"

// Seat-level failures surfaced by the lock manager.
var (
	// ErrSeatNotFound is returned when no seat row exists for the given
	// trip and seat id combination.
	ErrSeatNotFound = errors.New("seat not found")

	// ErrAlreadyBooked is returned when a lock or booking attempt targets
	// a seat that has already been sold.
	ErrAlreadyBooked = errors.New("seat already booked")

	// ErrLockedByOther is returned when a seat carries a fresh hold owned
	// by a different customer.
	ErrLockedByOther = errors.New("seat locked by another customer")

	// ErrNotLocked is returned when an unlock or confirm targets a seat
	// that is not currently held.
	ErrNotLocked = errors.New("seat is not locked")

	// ErrNotOwner is returned when neither the owner id nor the connection
	// id of the caller matches the seat's hold.
	ErrNotOwner = errors.New("hold owned by someone else")

	// ErrHoldExpired is returned when a confirm arrives after the hold
	// lapsed; the seat is released back to AVAILABLE as a side effect.
	ErrHoldExpired = errors.New("hold expired")
)

// Booking-level failures surfaced by the orchestrator.
var (
	// ErrBookingNotFound is returned when no booking exists for the id.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidBookingStatus is returned when a booking is in the wrong
	// state for the requested transition.
	ErrInvalidBookingStatus = errors.New("invalid booking status")

	// ErrNotAuthorized is returned when the requester does not own the
	// booking they are trying to mutate.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrValidationFailed is returned for malformed input.
	ErrValidationFailed = errors.New("validation failed")
)
