package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/openride/bus-seat-reservation/internal/model"
)

// SeatRepo provides data access to the seats table.  All mutating access
// goes through Acquire/AcquireMany, which take a row-level exclusive lock
// (SELECT ... FOR UPDATE) so that concurrent operations on the same seat
// are totally ordered by the database.  Operations on different seats never
// block each other.  Timestamps are stored and compared in UTC.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a new SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

const seatColumns = `id, trip_id, number, floor, class, price_cents, status, hold_owner, hold_conn, hold_until, created_at, updated_at`

func scanSeat(row interface{ Scan(...any) error }) (*model.Seat, error) {
	var (
		s         model.Seat
		owner     sql.NullString
		conn      sql.NullString
		holdUntil sql.NullTime
	)
	err := row.Scan(&s.ID, &s.TripID, &s.Number, &s.Floor, &s.Class, &s.PriceCents,
		&s.Status, &owner, &conn, &holdUntil, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if owner.Valid {
		s.HoldOwner = owner.String
	}
	if conn.Valid {
		s.HoldConn = conn.String
	}
	if holdUntil.Valid {
		t := holdUntil.Time.UTC()
		s.HoldUntil = &t
	}
	return &s, nil
}

// Acquire locks the seat row for the given trip and seat id, applies fn to
// the current state and persists the (possibly mutated) seat before
// committing.  When fn returns an error the transaction is rolled back and
// the error is returned unwrapped, so sentinel comparisons keep working.
// The returned seat reflects the committed state.
func (r *SeatRepo) Acquire(ctx context.Context, tripID, seatID uint64, fn func(*model.Seat) error) (*model.Seat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `SELECT ` + seatColumns + ` FROM seats WHERE trip_id = ? AND id = ? FOR UPDATE`
	seat, err := scanSeat(tx.QueryRowContext(ctx, q, tripID, seatID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	if err := fn(seat); err != nil {
		return nil, err
	}
	if err := updateSeatTx(ctx, tx, seat); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return seat, nil
}

// AcquireMany locks all requested seat rows in ascending id order inside a
// single transaction, applies fn to the full set and persists every seat
// on commit.  Locking in id order keeps concurrent multi-seat operations
// from deadlocking each other.  If any seat is missing, or fn fails, the
// whole transaction rolls back and no seat changes.  This is the
// all-or-nothing primitive behind multi-seat payment.
func (r *SeatRepo) AcquireMany(ctx context.Context, tripID uint64, seatIDs []uint64, fn func([]*model.Seat) error) ([]*model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, ErrValidationFailed
	}
	ordered := append([]uint64(nil), seatIDs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seats := make([]*model.Seat, 0, len(ordered))
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE trip_id = ? AND id = ? FOR UPDATE`
	for _, id := range ordered {
		seat, err := scanSeat(tx.QueryRowContext(ctx, q, tripID, id))
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, ErrSeatNotFound
			}
			return nil, err
		}
		seats = append(seats, seat)
	}
	if err := fn(seats); err != nil {
		return nil, err
	}
	for _, seat := range seats {
		if err := updateSeatTx(ctx, tx, seat); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return seats, nil
}

func updateSeatTx(ctx context.Context, tx *sql.Tx, s *model.Seat) error {
	var (
		owner     sql.NullString
		conn      sql.NullString
		holdUntil sql.NullTime
	)
	if s.HoldOwner != "" {
		owner = sql.NullString{String: s.HoldOwner, Valid: true}
	}
	if s.HoldConn != "" {
		conn = sql.NullString{String: s.HoldConn, Valid: true}
	}
	if s.HoldUntil != nil {
		holdUntil = sql.NullTime{Time: s.HoldUntil.UTC(), Valid: true}
	}
	const q = `UPDATE seats SET status = ?, hold_owner = ?, hold_conn = ?, hold_until = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, s.Status, owner, conn, holdUntil, s.ID)
	return err
}

// ListExpiredHeld returns every seat across all trips whose hold lapsed
// before now.  It takes no locks; the reclaimer re-checks each seat under
// its row lock before releasing it.
func (r *SeatRepo) ListExpiredHeld(ctx context.Context, now time.Time) ([]model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE status = ? AND hold_until < ?`
	rows, err := r.db.QueryContext(ctx, q, model.SeatHeld, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetByTrip returns the full seat map of a trip ordered by floor and number.
func (r *SeatRepo) GetByTrip(ctx context.Context, tripID uint64) ([]model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE trip_id = ? ORDER BY floor, id`
	rows, err := r.db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetByTripAndIDs returns the requested seats without locking them.  Seats
// that do not exist are simply absent from the result; callers decide how
// to report them.
func (r *SeatRepo) GetByTripAndIDs(ctx context.Context, tripID uint64, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE trip_id = ? AND id IN (`
	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, tripID)
	for i, id := range seatIDs {
		if i > 0 {
			q += ","
		}
		q += "?"
		args = append(args, id)
	}
	q += `) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// CreateBulk inserts the seat rows of a freshly generated seat map in one
// statement.  Status defaults to AVAILABLE; timestamps default in the DB.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (trip_id, number, floor, class, price_cents, status) VALUES `
	args := make([]any, 0, len(seats)*6)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, s.TripID, s.Number, s.Floor, s.Class, s.PriceCents, model.SeatAvailable)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// DeleteByTrip removes a trip's entire seat set.  Only used when a seat map
// is explicitly regenerated.
func (r *SeatRepo) DeleteByTrip(ctx context.Context, tripID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM seats WHERE trip_id = ?`, tripID)
	return err
}
