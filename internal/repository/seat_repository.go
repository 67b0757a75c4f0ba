package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SeatRecord mirrors the seats table. Under the virtual seats model a row
// only exists while the seat is locked or booked; a free seat has no row
// at all, so availability is arithmetic rather than enumerated.
type SeatRecord struct {
	ID          uint64
	EventID     uint64
	SeatTypeID  uint64
	SeatLabel   string
	Status      string
	OwnerUserID uint64
	LockedAt    time.Time
	ExpiresAt   time.Time
	BookedAt    *time.Time
}

var ErrSeatNotFound = errors.New("seat not found")

// SeatRepo provides data access for the virtual seats table, backing the
// Seat Lock Manager's persistent half of a lock (the in-memory/KV half
// lives in internal/lock).
type SeatRepo struct {
	db *sql.DB
}

func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// CreateLockedTx inserts a locked seat row. A UNIQUE KEY on (seat_type_id,
// seat_label) means this fails with a MySQL duplicate-key error when the
// label is already held by a live row, which callers translate to
// apperr.ErrConflict.
func (r *SeatRepo) CreateLockedTx(ctx context.Context, tx *sql.Tx, eventID, seatTypeID uint64, seatLabel string, ownerUserID uint64, lockedAt, expiresAt time.Time) (*SeatRecord, error) {
	const q = `INSERT INTO seats (event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at)
	           VALUES (?, ?, ?, 'locked', ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, eventID, seatTypeID, seatLabel, ownerUserID, lockedAt.UTC(), expiresAt.UTC())
	if err != nil {
		if isDuplicateKeyErr(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByIDTx(ctx, tx, uint64(id))
}

func isDuplicateKeyErr(err error) bool {
	return strings.Contains(err.Error(), "1062")
}

func (r *SeatRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*SeatRecord, error) {
	const q = `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	           FROM seats WHERE id = ?`
	return scanSeatRow(tx.QueryRowContext(ctx, q, id))
}

func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*SeatRecord, error) {
	const q = `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	           FROM seats WHERE id = ?`
	return scanSeatRow(r.db.QueryRowContext(ctx, q, id))
}

func scanSeatRow(row *sql.Row) (*SeatRecord, error) {
	var s SeatRecord
	var bookedAt sql.NullTime
	err := row.Scan(&s.ID, &s.EventID, &s.SeatTypeID, &s.SeatLabel, &s.Status, &s.OwnerUserID, &s.LockedAt, &s.ExpiresAt, &bookedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	if bookedAt.Valid {
		t := bookedAt.Time
		s.BookedAt = &t
	}
	return &s, nil
}

// ListByIDsTx fetches multiple seat rows FOR UPDATE within a transaction, used
// by the booking coordinator when confirming a batch of locked seats.
func (r *SeatRepo) ListByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]SeatRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	      FROM seats WHERE id IN (` + strings.Join(placeholders, ",") + `) FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []SeatRecord
	for rows.Next() {
		var s SeatRecord
		var bookedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.EventID, &s.SeatTypeID, &s.SeatLabel, &s.Status, &s.OwnerUserID, &s.LockedAt, &s.ExpiresAt, &bookedAt); err != nil {
			return nil, err
		}
		if bookedAt.Valid {
			t := bookedAt.Time
			s.BookedAt = &t
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// MarkBookedTx flips a locked seat row to booked, stamping booked_at.
func (r *SeatRepo) MarkBookedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE seats SET status = 'booked', booked_at = ? WHERE id = ? AND status = 'locked'`
	res, err := tx.ExecContext(ctx, q, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteTx removes a seat row entirely, releasing it back to the virtual
// pool. Used when a lock is released, a hold expires, or a booking is
// cancelled (seats are never "freed" in place, the row just disappears).
func (r *SeatRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM seats WHERE id = ?`, id)
	return err
}

func (r *SeatRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM seats WHERE id = ?`, id)
	return err
}

// ListExpiredLocked returns locked seats whose hold has lapsed, using the
// idx_seats_status_expires index. The expiry sweeper calls this on a tick.
func (r *SeatRepo) ListExpiredLocked(ctx context.Context, now time.Time, limit int) ([]SeatRecord, error) {
	const q = `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	           FROM seats WHERE status = 'locked' AND expires_at <= ? LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []SeatRecord
	for rows.Next() {
		var s SeatRecord
		var bookedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.EventID, &s.SeatTypeID, &s.SeatLabel, &s.Status, &s.OwnerUserID, &s.LockedAt, &s.ExpiresAt, &bookedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// ListLockedByUser returns every seat a user currently holds locked, used by
// the lock manager's ListByUser operation.
func (r *SeatRepo) ListLockedByUser(ctx context.Context, userID uint64) ([]SeatRecord, error) {
	const q = `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	           FROM seats WHERE owner_user_id = ? AND status = 'locked'`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []SeatRecord
	for rows.Next() {
		var s SeatRecord
		var bookedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.EventID, &s.SeatTypeID, &s.SeatLabel, &s.Status, &s.OwnerUserID, &s.LockedAt, &s.ExpiresAt, &bookedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// ExtendExpiryTx pushes a locked seat's expiry forward, used by the lock
// manager's Extend operation. It fails with ErrConflict if the seat is no
// longer locked by the same owner.
func (r *SeatRepo) ExtendExpiryTx(ctx context.Context, tx *sql.Tx, id, ownerUserID uint64, newExpiry time.Time) error {
	const q = `UPDATE seats SET expires_at = ? WHERE id = ? AND owner_user_id = ? AND status = 'locked'`
	res, err := tx.ExecContext(ctx, q, newExpiry.UTC(), id, ownerUserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}
