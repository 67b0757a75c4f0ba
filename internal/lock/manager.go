// Package lock implements the seat lock manager: at-most-one-holder
// reservations on a seat label, atomic across a Redis conditional-set and a
// MySQL uniqueness constraint. See internal/repository/seat_repository.go
// for the persisted half of a lock.
package lock

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/availability"
	"github.com/iliyamo/eventbooking-core/internal/model"
	"github.com/iliyamo/eventbooking-core/internal/realtime"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

var seatLabelPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// ValidateSeatLabel trims, uppercases and validates a seat label per
// spec.md's invariant 7. It returns the normalized label or ErrValidation.
func ValidateSeatLabel(raw string) (string, error) {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if !seatLabelPattern.MatchString(label) {
		return "", apperr.New(apperr.Validation, "seat label must match ^[A-Z0-9]{1,20}$")
	}
	return label, nil
}

// lockValue is what gets JSON-encoded into the Redis key.
type lockValue struct {
	UserID    uint64    `json:"user_id"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager is the Seat Lock Manager described by the component design:
// Acquire/Release/Extend/Get/BatchGet/ListByUser, with Redis as the fast
// path and MySQL as the final arbiter of uniqueness.
type Manager struct {
	rdb         *redis.Client
	db          *sql.DB
	seats       *repository.SeatRepo
	seatTypes   *repository.SeatTypeRepo
	events      *repository.EventRepo
	avail       *availability.Cache
	broadcaster *realtime.Publisher
	lockTTL     time.Duration
}

func New(rdb *redis.Client, db *sql.DB, seats *repository.SeatRepo, seatTypes *repository.SeatTypeRepo, events *repository.EventRepo, avail *availability.Cache, broadcaster *realtime.Publisher, lockTTL time.Duration) *Manager {
	return &Manager{rdb: rdb, db: db, seats: seats, seatTypes: seatTypes, events: events, avail: avail, broadcaster: broadcaster, lockTTL: lockTTL}
}

func keyFor(eventID, seatTypeID uint64, label string) string {
	return fmt.Sprintf("seat_lock:%d:%d:%s", eventID, seatTypeID, label)
}

// KeyFor exposes the Redis key format for a seat lock so callers outside
// this package (the expiry sweeper) can opportunistically clean up a stale
// entry once the DB row it mirrors is gone.
func KeyFor(eventID, seatTypeID uint64, label string) string {
	return keyFor(eventID, seatTypeID, label)
}

// Acquire reserves a seat label for LOCK_TTL, atomically across Redis and
// MySQL per the component design's four-step algorithm: conditional KV set,
// DB insert-or-conflict, availability decrement, commit.
func (m *Manager) Acquire(ctx context.Context, eventID, seatTypeID uint64, rawLabel string, userID uint64) (*model.Seat, error) {
	label, err := ValidateSeatLabel(rawLabel)
	if err != nil {
		return nil, err
	}

	event, err := m.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "event not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "load event", err)
	}
	if event.Status != "published" || !time.Now().UTC().Before(event.StartDate) {
		return nil, apperr.New(apperr.Validation, "event is not open for booking")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.lockTTL)
	key := keyFor(eventID, seatTypeID, label)

	val, err := json.Marshal(lockValue{UserID: userID, LockedAt: now, ExpiresAt: expiresAt})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "encode lock value", err)
	}

	// Step 1: conditional KV set, fast-path rejection.
	ok, err := m.rdb.SetNX(ctx, key, val, m.lockTTL).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "redis setnx", err)
	}
	if !ok {
		return nil, apperr.ErrConflict
	}

	// Steps 2-4: relational transaction is the final arbiter.
	seat, txErr := m.acquirePersist(ctx, eventID, seatTypeID, label, userID, now, expiresAt)
	if txErr != nil {
		// Compensate: delete the KV entry we just set, guarded by holder identity.
		m.compensateDelete(ctx, key, userID)
		return nil, txErr
	}

	// Keep the projection consistent at lock time rather than only at
	// booking/sweep time, so a reader hitting the cache right after this
	// Acquire commits never sees a stale (pre-decrement) count.
	m.avail.Decrement(ctx, eventID, seatTypeID, 1)

	if m.broadcaster != nil {
		m.broadcaster.SeatLocked(realtime.SeatLockedPayload{
			EventID: eventID, SeatTypeID: seatTypeID, SeatLabel: label, UserID: userID,
			AvailableQuantity: m.availableQuantity(ctx, seatTypeID), Lock: "locked",
		}, "")
	}
	return seatToModel(seat), nil
}

func (m *Manager) availableQuantity(ctx context.Context, seatTypeID uint64) int {
	st, err := m.seatTypes.GetByID(ctx, seatTypeID)
	if err != nil {
		return 0
	}
	return st.AvailableQuantity
}

func (m *Manager) acquirePersist(ctx context.Context, eventID, seatTypeID uint64, label string, userID uint64, lockedAt, expiresAt time.Time) (*repository.SeatRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	seat, err := m.seats.CreateLockedTx(ctx, tx, eventID, seatTypeID, label, userID, lockedAt, expiresAt)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.ErrConflict
		}
		return nil, apperr.Wrap(apperr.Internal, "insert seat row", err)
	}

	if err := m.seatTypes.DecrementAvailableTx(ctx, tx, seatTypeID, 1); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Invariant A should prevent this; treat as sold-out and
			// compensate by removing the seat row we just inserted.
			_ = m.seats.DeleteTx(ctx, tx, seat.ID)
			tx.Commit()
			return nil, apperr.New(apperr.Conflict, "no seats available")
		}
		return nil, apperr.Wrap(apperr.Internal, "decrement availability", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit tx", err)
	}
	return seat, nil
}

func (m *Manager) compensateDelete(ctx context.Context, key string, userID uint64) {
	raw, err := m.rdb.Get(ctx, key).Result()
	if err != nil {
		return
	}
	var v lockValue
	if json.Unmarshal([]byte(raw), &v) == nil && v.UserID == userID {
		m.rdb.Del(ctx, key)
	}
}

// Release removes a held lock; only the original holder may do so. Returns
// true if a lock was actually released.
func (m *Manager) Release(ctx context.Context, eventID, seatTypeID uint64, rawLabel string, userID uint64) (bool, error) {
	label, err := ValidateSeatLabel(rawLabel)
	if err != nil {
		return false, err
	}
	seat, err := m.findByLabel(ctx, eventID, seatTypeID, label)
	if err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.Internal, "lookup seat", err)
	}
	if seat.OwnerUserID != userID || seat.Status != string(model.SeatLocked) {
		return false, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	if err := m.seats.DeleteTx(ctx, tx, seat.ID); err != nil {
		return false, apperr.Wrap(apperr.Internal, "delete seat row", err)
	}
	if err := m.seatTypes.IncrementAvailableTx(ctx, tx, seatTypeID, 1); err != nil {
		return false, apperr.Wrap(apperr.Internal, "restore availability", err)
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Wrap(apperr.Internal, "commit tx", err)
	}

	m.rdb.Del(ctx, keyFor(eventID, seatTypeID, label))
	m.avail.Increment(ctx, eventID, seatTypeID, 1)

	if m.broadcaster != nil {
		m.broadcaster.SeatLocked(realtime.SeatLockedPayload{
			EventID: eventID, SeatTypeID: seatTypeID, SeatLabel: label, UserID: userID,
			AvailableQuantity: m.availableQuantity(ctx, seatTypeID), Lock: "released",
		}, "")
	}
	return true, nil
}

// Extend pushes a lock's expiry forward by additionalSeconds, computing the
// new absolute timestamp in application code rather than a DB-side
// INTERVAL derived from user input.
func (m *Manager) Extend(ctx context.Context, eventID, seatTypeID uint64, rawLabel string, userID uint64, additionalSeconds int) (bool, error) {
	label, err := ValidateSeatLabel(rawLabel)
	if err != nil {
		return false, err
	}
	newExpiry := time.Now().UTC().Add(time.Duration(additionalSeconds) * time.Second)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	seat, err := m.findByLabelTx(ctx, tx, eventID, seatTypeID, label)
	if err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.Internal, "lookup seat", err)
	}

	if err := m.seats.ExtendExpiryTx(ctx, tx, seat.ID, userID, newExpiry); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.Internal, "extend expiry", err)
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Wrap(apperr.Internal, "commit tx", err)
	}

	ttl := time.Until(newExpiry)
	val, _ := json.Marshal(lockValue{UserID: userID, LockedAt: seat.LockedAt, ExpiresAt: newExpiry})
	m.rdb.Set(ctx, keyFor(eventID, seatTypeID, label), val, ttl)

	// available_quantity is untouched by an extend; nothing to decrement or
	// invalidate in the availability projection here.

	if m.broadcaster != nil {
		m.broadcaster.SeatLocked(realtime.SeatLockedPayload{
			EventID: eventID, SeatTypeID: seatTypeID, SeatLabel: label, UserID: userID,
			AvailableQuantity: m.availableQuantity(ctx, seatTypeID), Lock: "extended",
		}, "")
	}
	return true, nil
}

// Get returns the current lock for a label, or nil if the seat is free.
func (m *Manager) Get(ctx context.Context, eventID, seatTypeID uint64, rawLabel string) (*model.Seat, error) {
	label, err := ValidateSeatLabel(rawLabel)
	if err != nil {
		return nil, err
	}
	seat, err := m.findByLabel(ctx, eventID, seatTypeID, label)
	if err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "lookup seat", err)
	}
	return seatToModel(seat), nil
}

// BatchGet looks up multiple labels within a seat type at once.
func (m *Manager) BatchGet(ctx context.Context, eventID, seatTypeID uint64, rawLabels []string) (map[string]*model.Seat, error) {
	out := make(map[string]*model.Seat, len(rawLabels))
	for _, raw := range rawLabels {
		label, err := ValidateSeatLabel(raw)
		if err != nil {
			return nil, err
		}
		seat, err := m.Get(ctx, eventID, seatTypeID, label)
		if err != nil {
			return nil, err
		}
		out[label] = seat
	}
	return out, nil
}

// ListByUser returns every seat a user currently holds locked for an event.
func (m *Manager) ListByUser(ctx context.Context, eventID, userID uint64) ([]model.Seat, error) {
	records, err := m.seats.ListLockedByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list locked seats", err)
	}
	var out []model.Seat
	for _, r := range records {
		if r.EventID != eventID {
			continue
		}
		out = append(out, *seatToModel(&r))
	}
	return out, nil
}

func (m *Manager) findByLabel(ctx context.Context, eventID, seatTypeID uint64, label string) (*repository.SeatRecord, error) {
	const q = `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	           FROM seats WHERE event_id = ? AND seat_type_id = ? AND seat_label = ?`
	row := m.db.QueryRowContext(ctx, q, eventID, seatTypeID, label)
	return scanSeat(row)
}

func (m *Manager) findByLabelTx(ctx context.Context, tx *sql.Tx, eventID, seatTypeID uint64, label string) (*repository.SeatRecord, error) {
	const q = `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	           FROM seats WHERE event_id = ? AND seat_type_id = ? AND seat_label = ? FOR UPDATE`
	row := tx.QueryRowContext(ctx, q, eventID, seatTypeID, label)
	return scanSeat(row)
}

func scanSeat(row *sql.Row) (*repository.SeatRecord, error) {
	var s repository.SeatRecord
	var bookedAt sql.NullTime
	err := row.Scan(&s.ID, &s.EventID, &s.SeatTypeID, &s.SeatLabel, &s.Status, &s.OwnerUserID, &s.LockedAt, &s.ExpiresAt, &bookedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSeatNotFound
		}
		return nil, err
	}
	if bookedAt.Valid {
		t := bookedAt.Time
		s.BookedAt = &t
	}
	return &s, nil
}

func seatToModel(s *repository.SeatRecord) *model.Seat {
	return &model.Seat{
		ID:          s.ID,
		EventID:     s.EventID,
		SeatTypeID:  s.SeatTypeID,
		SeatLabel:   s.SeatLabel,
		Status:      model.SeatStatus(s.Status),
		OwnerUserID: s.OwnerUserID,
		LockedAt:    s.LockedAt,
		ExpiresAt:   s.ExpiresAt,
		BookedAt:    s.BookedAt,
	}
}
