// Package lock implements the seat locking protocol: time-limited holds
// acquired under a per-seat exclusive lock, their confirmation into booked
// seats, and the background reclamation of holds that lapsed.  Every
// committed transition is published on the owning trip's broadcast topic.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openride/bus-seat-reservation/internal/model"
	"github.com/openride/bus-seat-reservation/internal/repository"
)

// SeatStore is the locked-access path to seat rows.  Acquire and
// AcquireMany hold an exclusive lock on the row(s) while fn runs; fn
// mutates the seats in place and a returned error aborts the whole
// operation without persisting anything.  The MySQL implementation lives
// in the repository package; tests substitute an in-memory store.
type SeatStore interface {
	Acquire(ctx context.Context, tripID, seatID uint64, fn func(*model.Seat) error) (*model.Seat, error)
	AcquireMany(ctx context.Context, tripID uint64, seatIDs []uint64, fn func([]*model.Seat) error) ([]*model.Seat, error)
	ListExpiredHeld(ctx context.Context, now time.Time) ([]model.Seat, error)
}

// Broadcaster receives one event per committed seat transition.
type Broadcaster interface {
	Publish(ev model.SeatEvent)
}

// errSkip aborts an acquire without surfacing an error; used when a
// reclaim loses the race against a client operation.
var errSkip = errors.New("skip")

// Manager enforces the hold protocol.  All seat mutations in the system go
// through it: handlers for client lock/unlock/confirm, the booking
// orchestrator for payment and cancellation, and the reclaimer for expired
// holds.  Events are published only after the row transition committed, so
// per-seat event order follows commit order.
type Manager struct {
	store    SeatStore
	sessions *SessionTracker
	hub      Broadcaster
	holdFor  time.Duration
	log      *logrus.Logger
	now      func() time.Time
}

// NewManager wires a Manager.  holdFor is the wall-clock lifetime of a
// hold (HOLD_DURATION).
func NewManager(store SeatStore, sessions *SessionTracker, hub Broadcaster, holdFor time.Duration, log *logrus.Logger) *Manager {
	return &Manager{
		store:    store,
		sessions: sessions,
		hub:      hub,
		holdFor:  holdFor,
		log:      log,
		now:      time.Now,
	}
}

// Lock places or refreshes a hold on a seat.
//
// Under the seat's exclusive lock: a booked seat fails with
// ErrAlreadyBooked; a fresh hold by a different owner fails with
// ErrLockedByOther; the same owner re-acquiring (fresh or stale) refreshes
// the expiry and takes over the connection id; an available seat or a
// stale hold by anyone is claimed outright.  On success the new hold's
// expiry is now + holdFor and a "locked" event is published.
func (m *Manager) Lock(ctx context.Context, tripID, seatID uint64, ownerID, connID string) (*model.Seat, error) {
	if ownerID == "" {
		return nil, repository.ErrValidationFailed
	}
	now := m.now().UTC()
	seat, err := m.store.Acquire(ctx, tripID, seatID, func(s *model.Seat) error {
		if s.Status == model.SeatBooked {
			return repository.ErrAlreadyBooked
		}
		if s.Status == model.SeatHeld && s.HoldOwner != ownerID && s.FreshHold(now) {
			return repository.ErrLockedByOther
		}
		until := now.Add(m.holdFor)
		s.Status = model.SeatHeld
		s.HoldOwner = ownerID
		s.HoldConn = connID
		s.HoldUntil = &until
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.sessions.Track(connID, SeatRef{TripID: tripID, SeatID: seatID})
	m.publish(seat, model.EventLocked, now)
	return seat, nil
}

// Unlock releases a hold.  Fails with ErrNotLocked if the seat is not
// held, or ErrNotOwner if neither the owner id nor the connection id
// matches the hold.  Passing an empty ownerID relaxes the check to the
// connection id alone, which is what disconnect cleanup uses.
func (m *Manager) Unlock(ctx context.Context, tripID, seatID uint64, ownerID, connID string) (*model.Seat, error) {
	now := m.now().UTC()
	var prevConn string
	seat, err := m.store.Acquire(ctx, tripID, seatID, func(s *model.Seat) error {
		if s.Status != model.SeatHeld {
			return repository.ErrNotLocked
		}
		ownerMatch := ownerID != "" && s.HoldOwner == ownerID
		connMatch := connID != "" && s.HoldConn == connID
		if !ownerMatch && !connMatch {
			return repository.ErrNotOwner
		}
		prevConn = s.HoldConn
		s.ClearHold()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.sessions.Untrack(prevConn, SeatRef{TripID: tripID, SeatID: seatID})
	m.publish(seat, model.EventUnlocked, now)
	return seat, nil
}

// Confirm transitions a held seat to BOOKED for its owner.  A stale hold
// fails with ErrHoldExpired and, as a side effect, the seat is released to
// AVAILABLE before the failure is returned (the release commits and an
// "expired" event is published).
func (m *Manager) Confirm(ctx context.Context, tripID, seatID uint64, ownerID string) (*model.Seat, error) {
	now := m.now().UTC()
	var (
		prevConn string
		expired  bool
	)
	seat, err := m.store.Acquire(ctx, tripID, seatID, func(s *model.Seat) error {
		if s.Status != model.SeatHeld {
			return repository.ErrNotLocked
		}
		if s.HoldOwner != ownerID {
			return repository.ErrNotOwner
		}
		prevConn = s.HoldConn
		if !s.FreshHold(now) {
			expired = true
			s.ClearHold()
			return nil
		}
		s.Status = model.SeatBooked
		s.HoldConn = ""
		s.HoldUntil = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.sessions.Untrack(prevConn, SeatRef{TripID: tripID, SeatID: seatID})
	if expired {
		m.publish(seat, model.EventExpired, now)
		return nil, repository.ErrHoldExpired
	}
	m.publish(seat, model.EventBooked, now)
	return seat, nil
}

// ConfirmAll books every listed seat in one transaction, requiring each to
// be freshly held by ownerID.  If any seat fails validation the whole call
// fails with the first seat's reason and no seat changes.  This is the
// payment path: either all of a booking's seats become BOOKED or none do.
func (m *Manager) ConfirmAll(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error) {
	now := m.now().UTC()
	prevConns := make(map[uint64]string, len(seatIDs))
	seats, err := m.store.AcquireMany(ctx, tripID, seatIDs, func(seats []*model.Seat) error {
		for _, s := range seats {
			if err := validateFreshHold(s, ownerID, now); err != nil {
				return fmt.Errorf("seat %s: %w", s.Number, err)
			}
		}
		for _, s := range seats {
			prevConns[s.ID] = s.HoldConn
			s.Status = model.SeatBooked
			s.HoldConn = ""
			s.HoldUntil = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, s := range seats {
		m.sessions.Untrack(prevConns[s.ID], SeatRef{TripID: tripID, SeatID: s.ID})
		m.publish(s, model.EventBooked, now)
	}
	return seats, nil
}

// ValidateHeld checks, under the seats' exclusive locks, that every listed
// seat is a valid fresh hold owned by ownerID.  Nothing is mutated; the
// lock only pins the check so a concurrent takeover cannot interleave.
// Used by booking confirmation, which keeps seats HELD until payment.
func (m *Manager) ValidateHeld(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error) {
	now := m.now().UTC()
	return m.store.AcquireMany(ctx, tripID, seatIDs, func(seats []*model.Seat) error {
		for _, s := range seats {
			if err := validateFreshHold(s, ownerID, now); err != nil {
				return fmt.Errorf("seat %s: %w", s.Number, err)
			}
		}
		return nil
	})
}

// BookAll claims the listed seats directly into BOOKED for ownerID.  Seats
// may be available, stale-held by anyone, or held by the owner; a booked
// seat fails with ErrAlreadyBooked and a fresh foreign hold with
// ErrLockedByOther, aborting the whole set.  The reschedule path uses this
// to seat a customer on the new trip in one shot.
func (m *Manager) BookAll(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error) {
	now := m.now().UTC()
	prevConns := make(map[uint64]string, len(seatIDs))
	seats, err := m.store.AcquireMany(ctx, tripID, seatIDs, func(seats []*model.Seat) error {
		for _, s := range seats {
			if s.Status == model.SeatBooked {
				return fmt.Errorf("seat %s: %w", s.Number, repository.ErrAlreadyBooked)
			}
			if s.Status == model.SeatHeld && s.HoldOwner != ownerID && s.FreshHold(now) {
				return fmt.Errorf("seat %s: %w", s.Number, repository.ErrLockedByOther)
			}
		}
		for _, s := range seats {
			prevConns[s.ID] = s.HoldConn
			s.Status = model.SeatBooked
			s.HoldOwner = ownerID
			s.HoldConn = ""
			s.HoldUntil = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, s := range seats {
		m.sessions.Untrack(prevConns[s.ID], SeatRef{TripID: tripID, SeatID: s.ID})
		m.publish(s, model.EventBooked, now)
	}
	return seats, nil
}

// Release returns a held or booked seat owned by ownerID to AVAILABLE.
// An available seat fails with ErrNotLocked, which callers on the
// cancellation path treat as "already released".  Unlike Unlock it also
// accepts BOOKED seats, since cancelling a paid booking frees sold seats.
func (m *Manager) Release(ctx context.Context, tripID, seatID uint64, ownerID string) (*model.Seat, error) {
	now := m.now().UTC()
	var prevConn string
	seat, err := m.store.Acquire(ctx, tripID, seatID, func(s *model.Seat) error {
		if s.Status == model.SeatAvailable {
			return repository.ErrNotLocked
		}
		if ownerID != "" && s.HoldOwner != ownerID {
			return repository.ErrNotOwner
		}
		prevConn = s.HoldConn
		s.ClearHold()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.sessions.Untrack(prevConn, SeatRef{TripID: tripID, SeatID: seatID})
	m.publish(seat, model.EventUnlocked, now)
	return seat, nil
}

// ReleaseConnection unlocks every seat tracked under connID and drops the
// tracker entry.  The ownership check is relaxed to the connection id
// because the owner may be unknown after a disconnect.  Races with
// concurrent confirms or reclaims are benign no-ops.  Returns the number
// of seats actually released.
func (m *Manager) ReleaseConnection(ctx context.Context, connID string) int {
	released := 0
	for _, ref := range m.sessions.Seats(connID) {
		_, err := m.Unlock(ctx, ref.TripID, ref.SeatID, "", connID)
		switch {
		case err == nil:
			released++
		case errors.Is(err, repository.ErrNotLocked), errors.Is(err, repository.ErrNotOwner):
			// seat moved on without us; nothing to release
		default:
			m.log.WithFields(logrus.Fields{
				"conn_id": connID,
				"trip_id": ref.TripID,
				"seat_id": ref.SeatID,
			}).WithError(err).Warn("disconnect release failed")
		}
	}
	m.sessions.Drop(connID)
	return released
}

// ReclaimExpired releases every hold whose expiry passed, re-checking each
// seat under its row lock so a reclaim never clobbers a concurrent confirm
// or a newer hold.  Returns the number of seats released.  Individual seat
// failures are logged and skipped; the next sweep retries them.
func (m *Manager) ReclaimExpired(ctx context.Context) (int, error) {
	now := m.now().UTC()
	stale, err := m.store.ListExpiredHeld(ctx, now)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for i := range stale {
		ref := SeatRef{TripID: stale[i].TripID, SeatID: stale[i].ID}
		var prevConn string
		seat, err := m.store.Acquire(ctx, ref.TripID, ref.SeatID, func(s *model.Seat) error {
			// Re-check: the hold may have been confirmed, released or
			// re-acquired since the list query.
			if s.Status != model.SeatHeld || s.FreshHold(now) {
				return errSkip
			}
			prevConn = s.HoldConn
			s.ClearHold()
			return nil
		})
		if err != nil {
			if !errors.Is(err, errSkip) {
				m.log.WithFields(logrus.Fields{
					"trip_id": ref.TripID,
					"seat_id": ref.SeatID,
				}).WithError(err).Warn("reclaim failed")
			}
			continue
		}
		m.sessions.Untrack(prevConn, ref)
		m.publish(seat, model.EventExpired, now)
		reclaimed++
	}
	return reclaimed, nil
}

// HoldDuration exposes the configured hold lifetime.
func (m *Manager) HoldDuration() time.Duration { return m.holdFor }

func validateFreshHold(s *model.Seat, ownerID string, now time.Time) error {
	switch {
	case s.Status == model.SeatBooked:
		return repository.ErrAlreadyBooked
	case s.Status != model.SeatHeld:
		return repository.ErrNotLocked
	case s.HoldOwner != ownerID:
		return repository.ErrLockedByOther
	case !s.FreshHold(now):
		return repository.ErrHoldExpired
	}
	return nil
}

func (m *Manager) publish(s *model.Seat, typ model.SeatEventType, at time.Time) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(model.SeatEvent{
		Type:       typ,
		TripID:     s.TripID,
		SeatID:     s.ID,
		SeatNumber: s.Number,
		Floor:      s.Floor,
		Status:     s.Status,
		Owner:      s.HoldOwner,
		HoldUntil:  s.HoldUntil,
		At:         at,
	})
}
