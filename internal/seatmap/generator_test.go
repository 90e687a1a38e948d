package seatmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openride/bus-seat-reservation/internal/model"
	"github.com/openride/bus-seat-reservation/internal/repository"
)

type fakeSeatWriter struct {
	created []model.Seat
	deleted []uint64
}

func (f *fakeSeatWriter) CreateBulk(ctx context.Context, seats []model.Seat) error {
	f.created = append(f.created, seats...)
	return nil
}

func (f *fakeSeatWriter) DeleteByTrip(ctx context.Context, tripID uint64) error {
	f.deleted = append(f.deleted, tripID)
	return nil
}

func TestBuildNumbersSeatsPerFloor(t *testing.T) {
	seats := Build(7, Layout{Floors: 2, SeatsPerFloor: 3, Class: "SLEEPER", PriceCents: 150_000})
	require.Len(t, seats, 6)

	numbers := make([]string, 0, len(seats))
	for _, s := range seats {
		numbers = append(numbers, s.Number)
		assert.Equal(t, uint64(7), s.TripID)
		assert.Equal(t, model.SeatAvailable, s.Status)
		assert.Equal(t, uint32(150_000), s.PriceCents)
	}
	assert.Equal(t, []string{"A1", "A2", "A3", "B1", "B2", "B3"}, numbers)
	assert.Equal(t, 1, seats[0].Floor)
	assert.Equal(t, 2, seats[5].Floor)
}

func TestGenerateRegenerateWipesFirst(t *testing.T) {
	w := &fakeSeatWriter{}
	g := NewGenerator(w)

	seats, err := g.Generate(context.Background(), 7, Layout{Floors: 1, SeatsPerFloor: 4, Class: "STANDARD", PriceCents: 80_000}, false)
	require.NoError(t, err)
	assert.Len(t, seats, 4)
	assert.Empty(t, w.deleted)

	_, err = g.Generate(context.Background(), 7, Layout{Floors: 1, SeatsPerFloor: 4, Class: "STANDARD", PriceCents: 80_000}, true)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, w.deleted)
}

func TestLayoutValidation(t *testing.T) {
	cases := []struct {
		name   string
		layout Layout
	}{
		{"zero floors", Layout{Floors: 0, SeatsPerFloor: 10, PriceCents: 1}},
		{"too many floors", Layout{Floors: 4, SeatsPerFloor: 10, PriceCents: 1}},
		{"zero seats", Layout{Floors: 1, SeatsPerFloor: 0, PriceCents: 1}},
		{"too many seats", Layout{Floors: 1, SeatsPerFloor: 61, PriceCents: 1}},
		{"free seats", Layout{Floors: 1, SeatsPerFloor: 10, PriceCents: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGenerator(&fakeSeatWriter{})
			_, err := g.Generate(context.Background(), 7, tc.layout, false)
			assert.ErrorIs(t, err, repository.ErrValidationFailed)
		})
	}
}
