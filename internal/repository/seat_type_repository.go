package repository

import (
	"context"
	"database/sql"
	"time"
)

// SeatTypeRecord mirrors the event_seat_types table.
type SeatTypeRecord struct {
	ID                uint64
	EventID           uint64
	Name              string
	PriceCents        int64
	Quantity          int
	AvailableQuantity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SeatTypeRepo manages the pricing tiers attached to an event. Availability
// bookkeeping (AvailableQuantity) is also exposed here so the Availability
// Cache has a durable source of truth to reconcile against.
type SeatTypeRepo struct {
	db *sql.DB
}

func NewSeatTypeRepo(db *sql.DB) *SeatTypeRepo { return &SeatTypeRepo{db: db} }

// Create inserts a seat type with available_quantity initialized to quantity.
func (r *SeatTypeRepo) Create(ctx context.Context, eventID uint64, name string, priceCents int64, quantity int) (*SeatTypeRecord, error) {
	const q = `INSERT INTO event_seat_types (event_id, name, price_cents, quantity, available_quantity)
	           VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, eventID, name, priceCents, quantity, quantity)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, uint64(id))
}

func (r *SeatTypeRepo) GetByID(ctx context.Context, id uint64) (*SeatTypeRecord, error) {
	const q = `SELECT id, event_id, name, price_cents, quantity, available_quantity, created_at, updated_at
	           FROM event_seat_types WHERE id = ?`
	var s SeatTypeRecord
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.EventID, &s.Name, &s.PriceCents, &s.Quantity, &s.AvailableQuantity, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByIDTx reads the row with FOR UPDATE inside the caller's transaction;
// the booking coordinator uses it to read a tier's price.
func (r *SeatTypeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*SeatTypeRecord, error) {
	const q = `SELECT id, event_id, name, price_cents, quantity, available_quantity, created_at, updated_at
	           FROM event_seat_types WHERE id = ? FOR UPDATE`
	var s SeatTypeRecord
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.EventID, &s.Name, &s.PriceCents, &s.Quantity, &s.AvailableQuantity, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByEvent returns all seat types for an event ordered by price ascending.
func (r *SeatTypeRepo) ListByEvent(ctx context.Context, eventID uint64) ([]SeatTypeRecord, error) {
	const q = `SELECT id, event_id, name, price_cents, quantity, available_quantity, created_at, updated_at
	           FROM event_seat_types WHERE event_id = ? ORDER BY price_cents ASC`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []SeatTypeRecord
	for rows.Next() {
		var s SeatTypeRecord
		if err := rows.Scan(&s.ID, &s.EventID, &s.Name, &s.PriceCents, &s.Quantity, &s.AvailableQuantity, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		types = append(types, s)
	}
	return types, rows.Err()
}

// DecrementAvailableTx reduces available_quantity by count, guarded by the
// CHECK constraint on the table. It returns ErrConflict (rows affected 0)
// when availability has fallen below count since the row was locked.
func (r *SeatTypeRepo) DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64, count int) error {
	const q = `UPDATE event_seat_types SET available_quantity = available_quantity - ?
	           WHERE id = ? AND available_quantity >= ?`
	res, err := tx.ExecContext(ctx, q, count, id, count)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// IncrementAvailableTx restores available_quantity by count, used when a
// hold expires or a booking is cancelled.
func (r *SeatTypeRepo) IncrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64, count int) error {
	const q = `UPDATE event_seat_types SET available_quantity = available_quantity + ?
	           WHERE id = ? AND available_quantity + ? <= quantity`
	_, err := tx.ExecContext(ctx, q, count, id, count)
	return err
}

// IncrementAvailable is the non-transactional counterpart used by the
// expiry sweeper, which does not share a transaction with the lock release.
func (r *SeatTypeRepo) IncrementAvailable(ctx context.Context, id uint64, count int) error {
	const q = `UPDATE event_seat_types SET available_quantity = available_quantity + ?
	           WHERE id = ? AND available_quantity + ? <= quantity`
	_, err := r.db.ExecContext(ctx, q, count, id, count)
	return err
}

// UpdateNamePrice edits a seat type's display name and price only.
func (r *SeatTypeRepo) UpdateNamePrice(ctx context.Context, id uint64, name string, priceCents int64) error {
	const q = `UPDATE event_seat_types SET name = ?, price_cents = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, name, priceCents, id)
	return err
}

// UpdateQuantity adjusts a seat type's total capacity by shifting both
// quantity and available_quantity by the same delta (newQuantity minus the
// row's current quantity), computed in the same statement so it stays
// consistent under concurrent lock/release activity. Lowering quantity
// below the live reservation count (quantity - available_quantity) would
// drive available_quantity negative; the WHERE guard rejects that with
// ErrConflict instead.
func (r *SeatTypeRepo) UpdateQuantity(ctx context.Context, id uint64, newQuantity int) error {
	const q = `UPDATE event_seat_types
	           SET available_quantity = available_quantity + (? - quantity),
	               quantity = ?
	           WHERE id = ? AND available_quantity + (? - quantity) >= 0`
	res, err := r.db.ExecContext(ctx, q, newQuantity, newQuantity, id, newQuantity)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// Delete removes a seat type row. Callers must verify no live seats
// reference it first (available_quantity == quantity).
func (r *SeatTypeRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM event_seat_types WHERE id = ?`, id)
	return err
}
