package lock

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Reclaimer periodically sweeps holds whose expiry has passed, independent
// of any client.  It is a correctness backstop: disconnect cleanup and
// client unlocks are latency optimizations, the sweep is what guarantees a
// held seat always comes back.
type Reclaimer struct {
	mgr      *Manager
	interval time.Duration
	log      *logrus.Logger
}

// NewReclaimer builds a reclaimer sweeping at the given interval.
func NewReclaimer(mgr *Manager, interval time.Duration, log *logrus.Logger) *Reclaimer {
	return &Reclaimer{mgr: mgr, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled.  Sweep errors are logged and retried
// on the next tick; they never stop the loop.
func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.mgr.ReclaimExpired(ctx)
			if err != nil {
				r.log.WithError(err).Warn("hold reclaim sweep failed")
				continue
			}
			if n > 0 {
				r.log.WithFields(logrus.Fields{"released": n}).Info("reclaimed expired holds")
			}
		}
	}
}
