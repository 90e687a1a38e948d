package booking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper expires HELD bookings whose payment window lapsed.  It is the
// booking-level twin of the hold reclaimer: the seat sweep frees seats
// whose hold clock ran out, this one retires the booking records sitting
// on top of them.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *logrus.Logger
}

// NewSweeper builds a sweeper running at the given interval.
func NewSweeper(svc *Service, interval time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled.  A failed booking is logged and
// retried next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.svc.bookings.ListExpiredHeld(ctx, s.svc.now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("booking sweep: list failed")
		return
	}
	var n int
	for i := range expired {
		if err := s.svc.ExpireBooking(ctx, &expired[i]); err != nil {
			s.log.WithField("booking_id", expired[i].ID).WithError(err).Warn("booking sweep: expire failed")
			continue
		}
		n++
	}
	if n > 0 {
		s.log.WithFields(logrus.Fields{"expired": n}).Info("expired unpaid bookings")
	}
}
