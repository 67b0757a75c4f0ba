package repository

import (
	"context"
	"database/sql"
	"time"
)

// EventRecord mirrors the events table.
type EventRecord struct {
	ID           uint64
	OrganizerID  uint64
	Title        string
	Status       string
	StartDate    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventRepo provides CRUD access to events. Organizer-facing writes are
// scoped to the organizer_id column; public reads filter on status.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Create inserts a new event owned by organizerID and returns the populated record.
func (r *EventRepo) Create(ctx context.Context, organizerID uint64, title string, startDate time.Time) (*EventRecord, error) {
	const q = `INSERT INTO events (organizer_id, title, status, start_date) VALUES (?, ?, 'draft', ?)`
	res, err := r.db.ExecContext(ctx, q, organizerID, title, startDate.UTC())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a single event by its primary key.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*EventRecord, error) {
	const q = `SELECT id, organizer_id, title, status, start_date, created_at, updated_at FROM events WHERE id = ?`
	var e EventRecord
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Status, &e.StartDate, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByIDTx is the transactional counterpart of GetByID, for a consistent
// read inside a larger transaction.
func (r *EventRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*EventRecord, error) {
	const q = `SELECT id, organizer_id, title, status, start_date, created_at, updated_at FROM events WHERE id = ?`
	var e EventRecord
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Status, &e.StartDate, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateForOrganizer updates title/start_date/status on an event owned by organizerID.
// Returns ErrForbidden if the event exists but belongs to a different organizer,
// and sql.ErrNoRows if the event does not exist at all.
func (r *EventRepo) UpdateForOrganizer(ctx context.Context, id, organizerID uint64, title string, status string, startDate time.Time) (*EventRecord, error) {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.OrganizerID != organizerID {
		return nil, ErrForbidden
	}
	const q = `UPDATE events SET title = ?, status = ?, start_date = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, title, status, startDate.UTC(), id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// DeleteForOrganizer removes an event owned by organizerID, rejecting the
// delete with ErrConflict if any seat row (locked or booked) still
// references it. A clean event's seat types have no live reservations
// either by definition, so they cascade in the same transaction.
func (r *EventRepo) DeleteForOrganizer(ctx context.Context, id, organizerID uint64) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.OrganizerID != organizerID {
		return ErrForbidden
	}

	var liveSeats int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seats WHERE event_id = ?`, id).Scan(&liveSeats); err != nil {
		return err
	}
	if liveSeats > 0 {
		return ErrConflict
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_seat_types WHERE event_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListPublished returns published events starting on or after `from`, ordered by start_date.
func (r *EventRepo) ListPublished(ctx context.Context, from time.Time, limit int) ([]EventRecord, error) {
	const q = `SELECT id, organizer_id, title, status, start_date, created_at, updated_at
	           FROM events WHERE status = 'published' AND start_date >= ?
	           ORDER BY start_date ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, from.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Status, &e.StartDate, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListByOrganizer returns every event owned by organizerID, newest first.
func (r *EventRepo) ListByOrganizer(ctx context.Context, organizerID uint64) ([]EventRecord, error) {
	const q = `SELECT id, organizer_id, title, status, start_date, created_at, updated_at
	           FROM events WHERE organizer_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Status, &e.StartDate, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
