package repository

import (
	"context"
	"database/sql"
	"time"
)

// TicketRecord mirrors the tickets table, one row per booked seat.
type TicketRecord struct {
	ID             uint64
	BookingID      uint64
	SeatID         uint64
	TicketID       string
	SeatLabel      string
	SeatTypeName   string
	PricePaidCents int64
	QRPayload      string
	Status         string
	EmailSent      bool
	SMSSent        bool
	GeneratedAt    *time.Time
	DeliveredAt    *time.Time
}

type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// CreatePending inserts a pending ticket row ahead of QR generation, giving
// the ticket generator worker something to claim and update in place.
func (r *TicketRepo) CreatePending(ctx context.Context, bookingID, seatID uint64, ticketID, seatLabel, seatTypeName string, priceCents int64) (*TicketRecord, error) {
	const q = `INSERT INTO tickets (booking_id, seat_id, ticket_id, seat_label, seat_type_name, price_paid_cents, qr_payload, status)
	           VALUES (?, ?, ?, ?, ?, ?, '', 'pending')`
	res, err := r.db.ExecContext(ctx, q, bookingID, seatID, ticketID, seatLabel, seatTypeName, priceCents)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, uint64(id))
}

func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*TicketRecord, error) {
	const q = ticketSelectCols + ` FROM tickets WHERE id = ?`
	return scanTicketRow(r.db.QueryRowContext(ctx, q, id))
}

func (r *TicketRepo) GetByTicketID(ctx context.Context, ticketID string) (*TicketRecord, error) {
	const q = ticketSelectCols + ` FROM tickets WHERE ticket_id = ?`
	return scanTicketRow(r.db.QueryRowContext(ctx, q, ticketID))
}

const ticketSelectCols = `SELECT id, booking_id, seat_id, ticket_id, seat_label, seat_type_name, price_paid_cents,
	qr_payload, status, email_sent, sms_sent, generated_at, delivered_at`

func scanTicketRow(row *sql.Row) (*TicketRecord, error) {
	var t TicketRecord
	var generatedAt, deliveredAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.BookingID, &t.SeatID, &t.TicketID, &t.SeatLabel, &t.SeatTypeName, &t.PricePaidCents,
		&t.QRPayload, &t.Status, &t.EmailSent, &t.SMSSent, &generatedAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if generatedAt.Valid {
		v := generatedAt.Time
		t.GeneratedAt = &v
	}
	if deliveredAt.Valid {
		v := deliveredAt.Time
		t.DeliveredAt = &v
	}
	return &t, nil
}

// ListByBooking returns every ticket generated for a booking, ordered by seat label.
func (r *TicketRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]TicketRecord, error) {
	q := ticketSelectCols + ` FROM tickets WHERE booking_id = ? ORDER BY seat_label`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TicketRecord
	for rows.Next() {
		var t TicketRecord
		var generatedAt, deliveredAt sql.NullTime
		if err := rows.Scan(
			&t.ID, &t.BookingID, &t.SeatID, &t.TicketID, &t.SeatLabel, &t.SeatTypeName, &t.PricePaidCents,
			&t.QRPayload, &t.Status, &t.EmailSent, &t.SMSSent, &generatedAt, &deliveredAt,
		); err != nil {
			return nil, err
		}
		if generatedAt.Valid {
			v := generatedAt.Time
			t.GeneratedAt = &v
		}
		if deliveredAt.Valid {
			v := deliveredAt.Time
			t.DeliveredAt = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkGenerated stores the rendered QR payload and flips status to generated.
func (r *TicketRepo) MarkGenerated(ctx context.Context, id uint64, qrPayload string) error {
	const q = `UPDATE tickets SET qr_payload = ?, status = 'generated', generated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, qrPayload, time.Now().UTC(), id)
	return err
}

// MarkFailed flips status to failed, retried on the next job queue attempt.
func (r *TicketRepo) MarkFailed(ctx context.Context, id uint64) error {
	const q = `UPDATE tickets SET status = 'failed' WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// MarkDelivered records that the ticket was emailed/texted to the customer.
func (r *TicketRepo) MarkDelivered(ctx context.Context, id uint64, email, sms bool) error {
	const q = `UPDATE tickets SET status = 'delivered', email_sent = ?, sms_sent = ?, delivered_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, email, sms, time.Now().UTC(), id)
	return err
}

// MarkEmailSentByBooking flips email_sent on every ticket in a booking once
// the send_email job succeeds, called instead of MarkDelivered since the
// SMS leg may still be pending.
func (r *TicketRepo) MarkEmailSentByBooking(ctx context.Context, bookingID uint64) error {
	const q = `UPDATE tickets SET email_sent = true, delivered_at = COALESCE(delivered_at, ?) WHERE booking_id = ?`
	_, err := r.db.ExecContext(ctx, q, time.Now().UTC(), bookingID)
	return err
}

// MarkSMSSentByBooking is MarkEmailSentByBooking's counterpart for the
// send_sms job.
func (r *TicketRepo) MarkSMSSentByBooking(ctx context.Context, bookingID uint64) error {
	const q = `UPDATE tickets SET sms_sent = true, delivered_at = COALESCE(delivered_at, ?) WHERE booking_id = ?`
	_, err := r.db.ExecContext(ctx, q, time.Now().UTC(), bookingID)
	return err
}
