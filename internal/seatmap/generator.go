// Package seatmap generates the seat inventory for a trip from a bus
// layout description.
package seatmap

import (
	"context"
	"fmt"

	"github.com/openride/bus-seat-reservation/internal/model"
	"github.com/openride/bus-seat-reservation/internal/repository"
)

// Layout describes a bus: floors, seats per floor, and pricing.  Sleeper
// buses have two floors; the per-floor seat class lets the upper deck be
// priced differently.
type Layout struct {
	Floors        uint8  `json:"floors"`
	SeatsPerFloor uint16 `json:"seats_per_floor"`
	Class         string `json:"class"`
	PriceCents    uint32 `json:"price_cents"`
}

const (
	maxFloors        = 3
	maxSeatsPerFloor = 60
)

// Validate rejects layouts the numbering scheme cannot express.
func (l Layout) Validate() error {
	if l.Floors < 1 || l.Floors > maxFloors {
		return fmt.Errorf("%w: floors must be 1-%d", repository.ErrValidationFailed, maxFloors)
	}
	if l.SeatsPerFloor < 1 || l.SeatsPerFloor > maxSeatsPerFloor {
		return fmt.Errorf("%w: seats_per_floor must be 1-%d", repository.ErrValidationFailed, maxSeatsPerFloor)
	}
	if l.PriceCents == 0 {
		return fmt.Errorf("%w: price_cents required", repository.ErrValidationFailed)
	}
	return nil
}

// SeatWriter is the slice of the seat repository the generator needs.
type SeatWriter interface {
	CreateBulk(ctx context.Context, seats []model.Seat) error
	DeleteByTrip(ctx context.Context, tripID uint64) error
}

// Generator builds a trip's seats from a layout.
type Generator struct {
	seats SeatWriter
}

// NewGenerator builds a generator over the given seat store.
func NewGenerator(seats SeatWriter) *Generator {
	return &Generator{seats: seats}
}

// Generate creates one AVAILABLE seat per position, numbered A1..An on the
// first floor, B1..Bn on the second, and so on.  With regenerate set the
// trip's existing seats are dropped first; otherwise generation on a trip
// that already has seats fails on the unique (trip_id, number) key.
func (g *Generator) Generate(ctx context.Context, tripID uint64, layout Layout, regenerate bool) ([]model.Seat, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if regenerate {
		if err := g.seats.DeleteByTrip(ctx, tripID); err != nil {
			return nil, err
		}
	}
	seats := Build(tripID, layout)
	if err := g.seats.CreateBulk(ctx, seats); err != nil {
		return nil, err
	}
	return seats, nil
}

// Build produces the seat rows for a layout without persisting them.
func Build(tripID uint64, layout Layout) []model.Seat {
	seats := make([]model.Seat, 0, int(layout.Floors)*int(layout.SeatsPerFloor))
	for f := uint8(0); f < layout.Floors; f++ {
		letter := rune('A' + f)
		for n := uint16(1); n <= layout.SeatsPerFloor; n++ {
			seats = append(seats, model.Seat{
				TripID:     tripID,
				Number:     fmt.Sprintf("%c%d", letter, n),
				Floor:      int(f) + 1,
				Class:      layout.Class,
				PriceCents: layout.PriceCents,
				Status:     model.SeatAvailable,
			})
		}
	}
	return seats
}
