package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openride/bus-seat-reservation/internal/model"
)

// ErrTripNotFound is returned when a trip id does not exist.  Trip CRUD
// lives outside this subsystem; this repo only reads what the reservation
// flow needs (existence and departure time).
var ErrTripNotFound = errors.New("trip not found")

// TripRepo reads trip rows maintained by the scheduling service.
type TripRepo struct {
	db *sql.DB
}

// NewTripRepo returns a new TripRepo bound to the provided database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// GetByID loads a trip.  Returns ErrTripNotFound when missing.
func (r *TripRepo) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
	const q = `SELECT id, route_name, departure_at FROM trips WHERE id = ?`
	var t model.Trip
	err := r.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.RouteName, &t.DepartureAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTripNotFound
		}
		return nil, err
	}
	t.DepartureAt = t.DepartureAt.UTC()
	return &t, nil
}
