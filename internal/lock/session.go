package lock

import "sync"

// SeatRef identifies one seat on one trip.
type SeatRef struct {
	TripID uint64
	SeatID uint64
}

// SessionTracker maps a real-time connection id to the seats it currently
// holds, so that a disconnect can release everything in one sweep.  The map
// is process-local and deliberately ephemeral: after a restart the expiry
// reclaimer still releases every hold via the stored hold_until, so losing
// this state costs latency, never correctness.
type SessionTracker struct {
	mu    sync.RWMutex
	conns map[string]map[SeatRef]struct{}
}

// NewSessionTracker returns an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{conns: make(map[string]map[SeatRef]struct{})}
}

// Track records that connID holds the given seat.
func (t *SessionTracker) Track(connID string, ref SeatRef) {
	if connID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[connID]
	if !ok {
		set = make(map[SeatRef]struct{})
		t.conns[connID] = set
	}
	set[ref] = struct{}{}
}

// Untrack drops a seat from a connection's held set.  Unknown connections
// and seats are no-ops; transitions race with disconnects all the time.
func (t *SessionTracker) Untrack(connID string, ref SeatRef) {
	if connID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[connID]
	if !ok {
		return
	}
	delete(set, ref)
	if len(set) == 0 {
		delete(t.conns, connID)
	}
}

// Seats returns a snapshot of the seats tracked under connID.
func (t *SessionTracker) Seats(connID string) []SeatRef {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.conns[connID]
	out := make([]SeatRef, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	return out
}

// Drop removes a connection's entry entirely.
func (t *SessionTracker) Drop(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, connID)
}

// Count reports how many seats a connection currently tracks.
func (t *SessionTracker) Count(connID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns[connID])
}
