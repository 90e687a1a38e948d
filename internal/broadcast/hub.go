// Package broadcast fans seat events out to everyone watching a trip.
// The registry is keyed by trip id so delivery cost is O(subscribers of
// that trip) and observers of one trip never see another trip's noise.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/openride/bus-seat-reservation/internal/model"
)

// subscriber channel buffer; a subscriber that falls this far behind
// starts losing events and must re-fetch the seat map.
const subscriberBuffer = 32

// Subscriber receives the events of a single trip.
type Subscriber struct {
	tripID uint64
	ch     chan model.SeatEvent
}

// Events is the stream of seat events for the subscribed trip.  It is
// closed on Unsubscribe.
func (s *Subscriber) Events() <-chan model.SeatEvent { return s.ch }

// Hub is an in-process publish/subscribe registry with one logical topic
// per trip.  Delivery is best-effort and never blocks a publisher: slow
// subscribers drop events.  When a Redis client is configured each event
// is also mirrored to the channel trip:{id}:seats so observers outside
// this process can follow along; a nil client degrades to local-only
// delivery, matching how the rest of the service treats Redis.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]map[*Subscriber]struct{}
	rdb  *redis.Client
	log  *logrus.Logger
}

// New builds a hub.  rdb may be nil.
func New(rdb *redis.Client, log *logrus.Logger) *Hub {
	return &Hub{
		subs: make(map[uint64]map[*Subscriber]struct{}),
		rdb:  rdb,
		log:  log,
	}
}

// Subscribe registers a new observer of the trip's seat events.
func (h *Hub) Subscribe(tripID uint64) *Subscriber {
	sub := &Subscriber{tripID: tripID, ch: make(chan model.SeatEvent, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[tripID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[tripID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the observer and closes its channel.  Safe to call
// once per subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.tripID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.tripID)
	}
	close(sub.ch)
}

// Publish delivers the event to every current subscriber of its trip and
// mirrors it to Redis.  Called by the lock manager after the row
// transition committed, so per-seat ordering follows commit order.
func (h *Hub) Publish(ev model.SeatEvent) {
	h.mu.RLock()
	for sub := range h.subs[ev.TripID] {
		select {
		case sub.ch <- ev:
		default:
			// subscriber too slow; it re-syncs from the seat map
		}
	}
	h.mu.RUnlock()

	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Warn("broadcast: marshal event failed")
		return
	}
	topic := fmt.Sprintf("trip:%d:seats", ev.TripID)
	if err := h.rdb.Publish(context.Background(), topic, payload).Err(); err != nil {
		h.log.WithError(err).WithField("topic", topic).Warn("broadcast: redis publish failed")
	}
}

// SubscriberCount reports how many observers a trip currently has.
func (h *Hub) SubscriberCount(tripID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tripID])
}
