package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// BookingRecord mirrors the bookings table.
type BookingRecord struct {
	ID                 uint64
	Reference          string
	EventID            uint64
	UserID             uint64
	TotalAmountCents   int64
	Status             string
	PaymentStatus      string
	PaymentID          *string
	PaymentGateway     *string
	BookedAt           time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	ExpiresAt          time.Time
}

// BookingSeatRecord mirrors the booking_seats table.
type BookingSeatRecord struct {
	BookingID      uint64
	SeatID         uint64
	PriceCents     int64
}

type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreatePendingTx inserts a pending booking row and returns the populated record.
func (r *BookingRepo) CreatePendingTx(ctx context.Context, tx *sql.Tx, reference string, eventID, userID uint64, totalCents int64, expiresAt time.Time) (*BookingRecord, error) {
	const q = `INSERT INTO bookings (reference, event_id, user_id, total_amount_cents, status, payment_status, expires_at)
	           VALUES (?, ?, ?, ?, 'pending', 'pending', ?)`
	res, err := tx.ExecContext(ctx, q, reference, eventID, userID, totalCents, expiresAt.UTC())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByIDTx(ctx, tx, uint64(id))
}

// CreateSeatsBulkTx attaches seats to a booking in a single statement.
func (r *BookingRepo) CreateSeatsBulkTx(ctx context.Context, tx *sql.Tx, seats []BookingSeatRecord) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, seat_id, price_paid_cents) VALUES `
	args := make([]interface{}, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, s.BookingID, s.SeatID, s.PriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*BookingRecord, error) {
	const q = bookingSelectCols + ` FROM bookings WHERE id = ?`
	return scanBookingRow(r.db.QueryRowContext(ctx, q, id))
}

func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*BookingRecord, error) {
	const q = bookingSelectCols + ` FROM bookings WHERE id = ?`
	return scanBookingRow(tx.QueryRowContext(ctx, q, id))
}

// GetByIDForUpdateTx locks the booking row, used by the confirmation and
// cancellation paths to serialize concurrent status transitions. It uses
// SKIP LOCKED rather than a plain FOR UPDATE: a booking already being
// confirmed or cancelled by another request should fail fast with
// ErrLocked instead of queueing behind that request's lock, per spec.md
// §4.2 step 2. A skipped row is indistinguishable from a missing one at
// the SQL level, so a non-locking existence check disambiguates the two.
func (r *BookingRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*BookingRecord, error) {
	const q = bookingSelectCols + ` FROM bookings WHERE id = ? FOR UPDATE SKIP LOCKED`
	rec, err := scanBookingRow(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, existsErr := r.GetByIDTx(ctx, tx, id); existsErr == nil {
				return nil, ErrLocked
			}
		}
		return nil, err
	}
	return rec, nil
}

func (r *BookingRepo) GetByReference(ctx context.Context, reference string) (*BookingRecord, error) {
	const q = bookingSelectCols + ` FROM bookings WHERE reference = ?`
	return scanBookingRow(r.db.QueryRowContext(ctx, q, reference))
}

const bookingSelectCols = `SELECT id, reference, event_id, user_id, total_amount_cents, status, payment_status,
	payment_id, payment_gateway, booked_at, confirmed_at, cancelled_at, cancellation_reason, expires_at`

func scanBookingRow(row *sql.Row) (*BookingRecord, error) {
	var b BookingRecord
	var paymentID, paymentGateway, cancellationReason sql.NullString
	var confirmedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.Reference, &b.EventID, &b.UserID, &b.TotalAmountCents, &b.Status, &b.PaymentStatus,
		&paymentID, &paymentGateway, &b.BookedAt, &confirmedAt, &cancelledAt, &cancellationReason, &b.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if paymentID.Valid {
		b.PaymentID = &paymentID.String
	}
	if paymentGateway.Valid {
		b.PaymentGateway = &paymentGateway.String
	}
	if cancellationReason.Valid {
		b.CancellationReason = &cancellationReason.String
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		b.ConfirmedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}

// SetOrderIDTx stamps the provider's pre-payment order id onto a pending
// booking's payment_id column; ConfirmTx later overwrites the same column
// with the payment id once funds are acknowledged.
func (r *BookingRepo) SetOrderIDTx(ctx context.Context, tx *sql.Tx, id uint64, orderID, gateway string) error {
	const q = `UPDATE bookings SET payment_id = ?, payment_gateway = ? WHERE id = ? AND status = 'pending'`
	res, err := tx.ExecContext(ctx, q, orderID, gateway, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// GetByOrderID looks up a booking by the provider order/payment id currently
// stamped on it. Used by the webhook handler, which only has the id the
// provider echoes back.
func (r *BookingRepo) GetByOrderID(ctx context.Context, orderID string) (*BookingRecord, error) {
	const q = bookingSelectCols + ` FROM bookings WHERE payment_id = ? ORDER BY id DESC LIMIT 1`
	return scanBookingRow(r.db.QueryRowContext(ctx, q, orderID))
}

// ConfirmTx transitions a pending booking to confirmed, recording the
// payment reference. Returns ErrConflict if the booking was not pending.
func (r *BookingRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64, paymentID, paymentGateway string) error {
	const q = `UPDATE bookings SET status = 'confirmed', payment_status = 'completed',
	           payment_id = ?, payment_gateway = ?, confirmed_at = ? WHERE id = ? AND status = 'pending'`
	res, err := tx.ExecContext(ctx, q, paymentID, paymentGateway, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// MarkPaymentFailedTx records a failed payment attempt without cancelling
// the booking outright, leaving the seat lock expiry as the final arbiter.
func (r *BookingRepo) MarkPaymentFailedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE bookings SET payment_status = 'failed' WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, id)
	return err
}

// CancelTx transitions a booking to cancelled with a reason, from pending
// or confirmed state. A confirmed booking that has already been paid is
// terminal per the booking lifecycle invariant, so the guard excludes it
// directly rather than relying on every caller to pre-check payment_status.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64, reason string) error {
	const q = `UPDATE bookings SET status = 'cancelled', cancelled_at = ?, cancellation_reason = ?
	           WHERE id = ? AND status IN ('pending', 'confirmed') AND payment_status != 'completed'`
	res, err := tx.ExecContext(ctx, q, time.Now().UTC(), reason, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ListExpiredPending returns pending bookings past their expiry, used by
// the expiry sweeper to cancel stale bookings whose seats already expired.
func (r *BookingRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]BookingRecord, error) {
	q := bookingSelectCols + ` FROM bookings WHERE status = 'pending' AND expires_at <= ? LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookingRecord
	for rows.Next() {
		var b BookingRecord
		var paymentID, paymentGateway, cancellationReason sql.NullString
		var confirmedAt, cancelledAt sql.NullTime
		if err := rows.Scan(
			&b.ID, &b.Reference, &b.EventID, &b.UserID, &b.TotalAmountCents, &b.Status, &b.PaymentStatus,
			&paymentID, &paymentGateway, &b.BookedAt, &confirmedAt, &cancelledAt, &cancellationReason, &b.ExpiresAt,
		); err != nil {
			return nil, err
		}
		if paymentID.Valid {
			b.PaymentID = &paymentID.String
		}
		if paymentGateway.Valid {
			b.PaymentGateway = &paymentGateway.String
		}
		if cancellationReason.Valid {
			b.CancellationReason = &cancellationReason.String
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListByUser returns bookings for a user ordered by booked_at descending,
// optionally filtered by status. An empty status lists every booking.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, status string, limit, offset int) ([]BookingRecord, error) {
	q := bookingSelectCols + ` FROM bookings WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY booked_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookingRecord
	for rows.Next() {
		var b BookingRecord
		var paymentID, paymentGateway, cancellationReason sql.NullString
		var confirmedAt, cancelledAt sql.NullTime
		if err := rows.Scan(
			&b.ID, &b.Reference, &b.EventID, &b.UserID, &b.TotalAmountCents, &b.Status, &b.PaymentStatus,
			&paymentID, &paymentGateway, &b.BookedAt, &confirmedAt, &cancelledAt, &cancellationReason, &b.ExpiresAt,
		); err != nil {
			return nil, err
		}
		if paymentID.Valid {
			b.PaymentID = &paymentID.String
		}
		if paymentGateway.Valid {
			b.PaymentGateway = &paymentGateway.String
		}
		if cancellationReason.Valid {
			b.CancellationReason = &cancellationReason.String
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListSeatsByBookingTx returns the seat IDs attached to a booking within a transaction.
func (r *BookingRepo) ListSeatsByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]BookingSeatRecord, error) {
	const q = `SELECT booking_id, seat_id, price_paid_cents FROM booking_seats WHERE booking_id = ?`
	rows, err := tx.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookingSeatRecord
	for rows.Next() {
		var s BookingSeatRecord
		if err := rows.Scan(&s.BookingID, &s.SeatID, &s.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSeatsByBookingTx removes the booking_seats link rows, called
// alongside seat row deletion when a booking is cancelled so the FK into
// seats never dangles.
func (r *BookingRepo) DeleteSeatsByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM booking_seats WHERE booking_id = ?`, bookingID)
	return err
}

