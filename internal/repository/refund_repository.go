package repository

import (
	"context"
	"database/sql"

	"github.com/openride/bus-seat-reservation/internal/model"
)

// RefundRepo provides data access to the refunds table.
type RefundRepo struct {
	db *sql.DB
}

// NewRefundRepo returns a new RefundRepo bound to the provided database.
func NewRefundRepo(db *sql.DB) *RefundRepo { return &RefundRepo{db: db} }

// Create inserts a refund with status PENDING and populates its id.
func (r *RefundRepo) Create(ctx context.Context, ref *model.Refund) error {
	if ref.Status == "" {
		ref.Status = model.RefundPending
	}
	const q = `INSERT INTO refunds (booking_id, amount_cents, type, reason, status) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, ref.BookingID, ref.AmountCents, ref.Type, ref.Reason, ref.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ref.ID = uint64(id)
	return nil
}

// ListByBooking returns all refunds recorded against a booking.
func (r *RefundRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Refund, error) {
	const q = `SELECT id, booking_id, amount_cents, type, reason, status, created_at FROM refunds WHERE booking_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Refund
	for rows.Next() {
		var ref model.Refund
		if err := rows.Scan(&ref.ID, &ref.BookingID, &ref.AmountCents, &ref.Type, &ref.Reason, &ref.Status, &ref.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
