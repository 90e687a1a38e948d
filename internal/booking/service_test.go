package booking

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openride/bus-seat-reservation/internal/model"
	"github.com/openride/bus-seat-reservation/internal/queue"
	"github.com/openride/bus-seat-reservation/internal/repository"
)

type fakeLocker struct {
	seats       map[uint64]*model.Seat
	validateErr error
	confirmErr  error
	bookErr     error
	released    []uint64
	releaseErr  map[uint64]error
}

func (f *fakeLocker) pick(ids []uint64) []*model.Seat {
	out := make([]*model.Seat, 0, len(ids))
	for _, id := range ids {
		if s, ok := f.seats[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeLocker) ValidateHeld(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return f.pick(seatIDs), nil
}

func (f *fakeLocker) ConfirmAll(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.pick(seatIDs), nil
}

func (f *fakeLocker) BookAll(ctx context.Context, tripID uint64, seatIDs []uint64, ownerID string) ([]*model.Seat, error) {
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	return f.pick(seatIDs), nil
}

func (f *fakeLocker) Release(ctx context.Context, tripID, seatID uint64, ownerID string) (*model.Seat, error) {
	if err, ok := f.releaseErr[seatID]; ok {
		return nil, err
	}
	f.released = append(f.released, seatID)
	return &model.Seat{ID: seatID, TripID: tripID, Status: model.SeatAvailable}, nil
}

type fakeSeatReader struct {
	seats []model.Seat
	err   error
}

func (f *fakeSeatReader) GetByTripAndIDs(ctx context.Context, tripID uint64, seatIDs []uint64) ([]model.Seat, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[uint64]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = struct{}{}
	}
	var out []model.Seat
	for _, s := range f.seats {
		if _, ok := want[s.ID]; ok && s.TripID == tripID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeBookingStore struct {
	nextID        uint64
	bookings      map[uint64]*model.Booking
	tickets       map[uint64][]model.Ticket
	createErr     error
	transitionErr error
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{
		bookings: make(map[uint64]*model.Booking),
		tickets:  make(map[uint64][]model.Ticket),
	}
}

func (f *fakeBookingStore) CreateWithTickets(ctx context.Context, b *model.Booking, tickets []model.Ticket) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	b.ID = f.nextID
	cp := *b
	f.bookings[b.ID] = &cp
	ts := make([]model.Ticket, len(tickets))
	for i, t := range tickets {
		t.BookingID = b.ID
		ts[i] = t
	}
	f.tickets[b.ID] = ts
	return nil
}

func (f *fakeBookingStore) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingStore) TicketsByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	return append([]model.Ticket(nil), f.tickets[bookingID]...), nil
}

func (f *fakeBookingStore) Transition(ctx context.Context, bookingID uint64, bs model.BookingStatus, ts model.TicketStatus) error {
	if f.transitionErr != nil {
		return f.transitionErr
	}
	b, ok := f.bookings[bookingID]
	if !ok {
		return repository.ErrBookingNotFound
	}
	b.Status = bs
	if bs == model.BookingPaid {
		b.HoldUntil = nil
	}
	list := f.tickets[bookingID]
	for i := range list {
		list[i].Status = ts
	}
	return nil
}

func (f *fakeBookingStore) ListExpiredHeld(ctx context.Context, now time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range f.bookings {
		if b.Status == model.BookingHeld && b.HoldUntil != nil && !now.Before(*b.HoldUntil) {
			out = append(out, *b)
		}
	}
	return out, nil
}

type fakeRefundStore struct {
	refunds []model.Refund
	err     error
}

func (f *fakeRefundStore) Create(ctx context.Context, ref *model.Refund) error {
	if f.err != nil {
		return f.err
	}
	f.refunds = append(f.refunds, *ref)
	return nil
}

func (f *fakeRefundStore) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Refund, error) {
	var out []model.Refund
	for _, r := range f.refunds {
		if r.BookingID == bookingID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeTripStore struct {
	trips map[uint64]*model.Trip
}

func (f *fakeTripStore) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return nil, repository.ErrTripNotFound
	}
	return t, nil
}

type published struct {
	queue   string
	payload any
}

type fakePublisher struct {
	events []published
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, payload any) error {
	f.events = append(f.events, published{queue: queueName, payload: payload})
	return nil
}

func (f *fakePublisher) byQueue(name string) []published {
	var out []published
	for _, e := range f.events {
		if e.queue == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	locker   *fakeLocker
	seats    *fakeSeatReader
	bookings *fakeBookingStore
	refunds  *fakeRefundStore
	trips    *fakeTripStore
	pub      *fakePublisher
	now      time.Time
}

func heldSeat(id uint64, tripID uint64, price uint32, owner string, until time.Time) *model.Seat {
	u := until
	return &model.Seat{
		ID:         id,
		TripID:     tripID,
		Number:     "A1",
		PriceCents: price,
		Status:     model.SeatHeld,
		HoldOwner:  owner,
		HoldUntil:  &u,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := &fixture{
		locker:   &fakeLocker{seats: make(map[uint64]*model.Seat)},
		seats:    &fakeSeatReader{},
		bookings: newFakeBookingStore(),
		refunds:  &fakeRefundStore{},
		trips: &fakeTripStore{trips: map[uint64]*model.Trip{
			7: {ID: 7, RouteName: "Hanoi - Da Nang", DepartureAt: now.Add(72 * time.Hour)},
			8: {ID: 8, RouteName: "Hanoi - Hue", DepartureAt: now.Add(96 * time.Hour)},
		}},
		pub: &fakePublisher{},
		now: now,
	}
	f.svc = NewService(f.locker, f.seats, f.bookings, f.refunds, f.trips, f.pub, 15*time.Minute, log)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestConfirmCreatesHeldBooking(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 80_000, "alice", until)
	f.locker.seats[2] = heldSeat(2, 7, 120_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1, 2, 1}, "alice", CustomerInfo{Name: "Alice", Phone: "555"})
	require.NoError(t, err)

	assert.NotEmpty(t, b.Code)
	assert.Equal(t, model.BookingHeld, b.Status)
	assert.Equal(t, uint32(200_000), b.TotalCents)
	assert.Equal(t, f.now.Add(15*time.Minute), *b.HoldUntil)

	tickets, _ := f.bookings.TicketsByBooking(context.Background(), b.ID)
	require.Len(t, tickets, 2, "duplicate seat ids collapse to one ticket each")
	for _, tk := range tickets {
		assert.Equal(t, model.TicketUnconfirmed, tk.Status)
	}
}

func TestConfirmValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), 7, nil, "alice", CustomerInfo{})
	assert.ErrorIs(t, err, repository.ErrValidationFailed)

	_, err = f.svc.Confirm(context.Background(), 7, []uint64{1}, "", CustomerInfo{})
	assert.ErrorIs(t, err, repository.ErrValidationFailed)

	_, err = f.svc.Confirm(context.Background(), 99, []uint64{1}, "alice", CustomerInfo{})
	assert.ErrorIs(t, err, repository.ErrTripNotFound)

	f.locker.validateErr = repository.ErrLockedByOther
	_, err = f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	assert.ErrorIs(t, err, repository.ErrLockedByOther)
	assert.Empty(t, f.bookings.bookings, "no booking row on failed validation")
}

func TestPreviewReportsPerSeatReasons(t *testing.T) {
	f := newFixture(t)
	fresh := f.now.Add(time.Minute)
	stale := f.now.Add(-time.Minute)
	f.seats.seats = []model.Seat{
		{ID: 1, TripID: 7, Number: "A1", PriceCents: 80_000, Status: model.SeatHeld, HoldOwner: "alice", HoldUntil: &fresh},
		{ID: 2, TripID: 7, Number: "A2", PriceCents: 80_000, Status: model.SeatBooked, HoldOwner: "bob"},
		{ID: 3, TripID: 7, Number: "A3", PriceCents: 80_000, Status: model.SeatHeld, HoldOwner: "bob", HoldUntil: &fresh},
		{ID: 4, TripID: 7, Number: "A4", PriceCents: 80_000, Status: model.SeatHeld, HoldOwner: "alice", HoldUntil: &stale},
	}

	p, err := f.svc.Preview(context.Background(), 7, []uint64{1, 2, 3, 4, 5}, "alice")
	require.NoError(t, err)

	assert.False(t, p.AllHeld)
	assert.Equal(t, uint32(80_000), p.TotalCents)
	require.Len(t, p.Seats, 5)

	reasons := make(map[uint64]string)
	for _, sc := range p.Seats {
		reasons[sc.SeatID] = sc.Reason
	}
	assert.Empty(t, reasons[1])
	assert.Equal(t, "already booked", reasons[2])
	assert.Equal(t, "held by another customer", reasons[3])
	assert.Equal(t, "hold expired", reasons[4])
	assert.Equal(t, "seat not found", reasons[5])
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, fresh, *p.ExpiresAt)
}

func TestProcessPayment(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)

	paid, err := f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPaid, paid.Status)
	assert.Nil(t, paid.HoldUntil)

	tickets, _ := f.bookings.TicketsByBooking(context.Background(), b.ID)
	for _, tk := range tickets {
		assert.Equal(t, model.TicketConfirmed, tk.Status)
	}
	require.Len(t, f.pub.byQueue(queue.BookingConfirmedQueue), 1)

	// duplicate gateway callback is a no-op
	again, err := f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPaid, again.Status)
	assert.Len(t, f.pub.byQueue(queue.BookingConfirmedQueue), 1, "no second event")
}

func TestProcessPaymentSeatFailureLeavesBookingHeld(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)

	f.locker.confirmErr = repository.ErrHoldExpired
	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	assert.ErrorIs(t, err, repository.ErrHoldExpired)

	cur, _ := f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, model.BookingHeld, cur.Status)
	assert.Empty(t, f.pub.byQueue(queue.BookingConfirmedQueue))
}

func TestProcessPaymentWrongStatus(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), b.ID, "alice")
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidBookingStatus)
}

func TestCancelHeldBookingNoRefund(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), b.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Equal(t, []uint64{1}, f.locker.released)
	assert.Empty(t, f.refunds.refunds, "unpaid booking earns no refund")
	require.Len(t, f.pub.byQueue(queue.BookingCancelledQueue), 1)
}

func TestCancelPaidBookingFullRefund(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 200_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)

	// trip 7 departs 72h after now: full refund window
	cancelled, err := f.svc.Cancel(context.Background(), b.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)

	require.Len(t, f.refunds.refunds, 1)
	ref := f.refunds.refunds[0]
	assert.Equal(t, uint32(200_000), ref.AmountCents)
	assert.Equal(t, model.RefundTypeCancellation, ref.Type)
	require.Len(t, f.pub.byQueue(queue.RefundIssuedQueue), 1)
}

func TestCancelPaidBookingHalfRefund(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 200_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)

	// move the clock to 24h before departure
	f.now = f.trips.trips[7].DepartureAt.Add(-24 * time.Hour)
	_, err = f.svc.Cancel(context.Background(), b.ID, "alice")
	require.NoError(t, err)

	require.Len(t, f.refunds.refunds, 1)
	assert.Equal(t, uint32(100_000), f.refunds.refunds[0].AmountCents)
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), b.ID, "mallory")
	assert.ErrorIs(t, err, repository.ErrNotAuthorized)

	_, err = f.svc.Cancel(context.Background(), b.ID, "alice")
	require.NoError(t, err)

	// double cancel
	_, err = f.svc.Cancel(context.Background(), b.ID, "alice")
	assert.ErrorIs(t, err, repository.ErrInvalidBookingStatus)
}

func TestRescheduleToCostlierTrip(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{Name: "Alice"})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)

	f.locker.seats[10] = &model.Seat{ID: 10, TripID: 8, Number: "B1", PriceCents: 120_000, Status: model.SeatAvailable}

	nb, err := f.svc.Reschedule(context.Background(), b.ID, 8, []uint64{10}, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.BookingPaid, nb.Status)
	assert.Equal(t, uint32(120_000), nb.TotalCents)
	assert.Equal(t, uint32(20_000), nb.ExtraFeeCents)
	assert.Equal(t, "Alice", nb.ContactName, "contact details carry over")

	old, _ := f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, model.BookingRescheduled, old.Status)
	assert.Contains(t, f.locker.released, uint64(1), "old seat freed")
	assert.Empty(t, f.refunds.refunds, "costlier trip earns no refund")
}

func TestRescheduleToCheaperTripRefundsDifference(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)

	f.locker.seats[10] = &model.Seat{ID: 10, TripID: 8, Number: "B1", PriceCents: 70_000, Status: model.SeatAvailable}

	nb, err := f.svc.Reschedule(context.Background(), b.ID, 8, []uint64{10}, "alice")
	require.NoError(t, err)
	assert.Zero(t, nb.ExtraFeeCents)

	require.Len(t, f.refunds.refunds, 1)
	ref := f.refunds.refunds[0]
	assert.Equal(t, uint32(30_000), ref.AmountCents)
	assert.Equal(t, model.RefundTypeReschedule, ref.Type)
}

func TestRescheduleGuards(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)

	// unpaid bookings cannot be rescheduled
	_, err = f.svc.Reschedule(context.Background(), b.ID, 8, []uint64{10}, "alice")
	assert.ErrorIs(t, err, repository.ErrInvalidBookingStatus)

	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), b.ID, 8, []uint64{10}, "mallory")
	assert.ErrorIs(t, err, repository.ErrNotAuthorized)

	// inside the 12h window
	f.now = f.trips.trips[7].DepartureAt.Add(-6 * time.Hour)
	_, err = f.svc.Reschedule(context.Background(), b.ID, 8, []uint64{10}, "alice")
	assert.ErrorIs(t, err, repository.ErrInvalidBookingStatus)
}

func TestGetBookingDetail(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 200_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(context.Background(), b.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), b.ID, "alice")
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), b.ID, "mallory")
	assert.ErrorIs(t, err, repository.ErrNotAuthorized)

	d, err := f.svc.Get(context.Background(), b.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, d.Booking.Status)
	require.Len(t, d.Tickets, 1)
	require.Len(t, d.Refunds, 1)
	assert.Equal(t, uint32(200_000), d.Refunds[0].AmountCents)
}

func TestExpireBooking(t *testing.T) {
	f := newFixture(t)
	until := f.now.Add(2 * time.Minute)
	f.locker.seats[1] = heldSeat(1, 7, 100_000, "alice", until)

	b, err := f.svc.Confirm(context.Background(), 7, []uint64{1}, "alice", CustomerInfo{})
	require.NoError(t, err)

	require.NoError(t, f.svc.ExpireBooking(context.Background(), b))

	cur, _ := f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, model.BookingExpired, cur.Status)
	assert.Equal(t, []uint64{1}, f.locker.released)

	// anything past HELD is left alone
	paid := &model.Booking{ID: 99, Status: model.BookingPaid}
	assert.NoError(t, f.svc.ExpireBooking(context.Background(), paid))
}
