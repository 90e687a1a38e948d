package broadcast

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openride/bus-seat-reservation/internal/model"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func event(tripID, seatID uint64) model.SeatEvent {
	return model.SeatEvent{
		Type:       model.EventLocked,
		TripID:     tripID,
		SeatID:     seatID,
		SeatNumber: "A1",
		Status:     model.SeatHeld,
		At:         time.Now().UTC(),
	}
}

func TestHubDeliversToTripSubscribers(t *testing.T) {
	h := New(nil, testLogger())
	sub1 := h.Subscribe(1)
	sub2 := h.Subscribe(1)
	other := h.Subscribe(2)

	h.Publish(event(1, 10))

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, uint64(10), ev.SeatID)
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
	select {
	case <-other.Events():
		t.Fatal("subscriber of another trip received the event")
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := New(nil, testLogger())
	sub := h.Subscribe(1)
	require.Equal(t, 1, h.SubscriberCount(1))

	h.Unsubscribe(sub)
	assert.Zero(t, h.SubscriberCount(1))

	_, open := <-sub.Events()
	assert.False(t, open)

	// second unsubscribe is a no-op, not a double close
	h.Unsubscribe(sub)
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	h := New(nil, testLogger())
	sub := h.Subscribe(1)

	// nobody drains: the buffer fills and publishing keeps going
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(event(1, uint64(i)))
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	h := New(nil, testLogger())
	h.Publish(event(1, 10)) // must not panic or block
}
