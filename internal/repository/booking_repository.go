package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/openride/bus-seat-reservation/internal/model"
)

// BookingRepo provides data access to bookings and their tickets.  Bookings
// are created together with their tickets in one transaction and are never
// physically deleted; state changes go through Transition so a booking and
// its tickets always move together.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, code, trip_id, customer_id, contact_name, contact_phone, total_cents, extra_fee_cents, status, hold_until, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var (
		b         model.Booking
		name      sql.NullString
		phone     sql.NullString
		holdUntil sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Code, &b.TripID, &b.CustomerID, &name, &phone,
		&b.TotalCents, &b.ExtraFeeCents, &b.Status, &holdUntil, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		b.ContactName = name.String
	}
	if phone.Valid {
		b.ContactPhone = phone.String
	}
	if holdUntil.Valid {
		t := holdUntil.Time.UTC()
		b.HoldUntil = &t
	}
	return &b, nil
}

// CreateWithTickets inserts a booking and all of its tickets in a single
// transaction, populating the generated ids on the passed structs.
func (r *BookingRepo) CreateWithTickets(ctx context.Context, b *model.Booking, tickets []model.Ticket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var holdUntil sql.NullTime
	if b.HoldUntil != nil {
		holdUntil = sql.NullTime{Time: b.HoldUntil.UTC(), Valid: true}
	}
	const ins = `INSERT INTO bookings (code, trip_id, customer_id, contact_name, contact_phone, total_cents, extra_fee_cents, status, hold_until) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins, b.Code, b.TripID, b.CustomerID,
		nullStr(b.ContactName), nullStr(b.ContactPhone), b.TotalCents, b.ExtraFeeCents, b.Status, holdUntil)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)

	if len(tickets) > 0 {
		query := `INSERT INTO tickets (booking_id, seat_id, seat_number, price_cents, status) VALUES `
		args := make([]any, 0, len(tickets)*5)
		for i := range tickets {
			tickets[i].BookingID = b.ID
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?)"
			args = append(args, b.ID, tickets[i].SeatID, tickets[i].SeatNumber, tickets[i].PriceCents, tickets[i].Status)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// GetByID loads one booking.  Returns ErrBookingNotFound when missing.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// TicketsByBooking returns all tickets of a booking ordered by seat id.
func (r *BookingRepo) TicketsByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	const q = `SELECT id, booking_id, seat_id, seat_number, price_cents, status FROM tickets WHERE booking_id = ? ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.BookingID, &t.SeatID, &t.SeatNumber, &t.PriceCents, &t.Status); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transition moves a booking and all of its tickets to the given statuses
// in one transaction.  A paid booking also has its hold_until cleared since
// the booking hold window no longer applies.
func (r *BookingRepo) Transition(ctx context.Context, bookingID uint64, bs model.BookingStatus, ts model.TicketStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	q := `UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	if bs == model.BookingPaid {
		q = `UPDATE bookings SET status = ?, hold_until = NULL, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	}
	res, err := tx.ExecContext(ctx, q, bs, bookingID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBookingNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET status = ? WHERE booking_id = ?`, ts, bookingID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListExpiredHeld returns HELD bookings whose payment window lapsed before
// now.  Used by the booking sweeper.
func (r *BookingRepo) ListExpiredHeld(ctx context.Context, now time.Time) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? AND hold_until IS NOT NULL AND hold_until < ?`
	rows, err := r.db.QueryContext(ctx, q, model.BookingHeld, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
