package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// IdempotencyRecord mirrors the idempotency_keys table, the Idempotency
// Store's only backing store: its primary key on the idempotency key gives
// the conditional-insert semantics the store relies on.
type IdempotencyRecord struct {
	Key              string
	OperationType    string
	ResourceID       *string
	UserID           uint64
	Status           string
	ResponseSnapshot []byte
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

var ErrIdempotencyKeyExists = errors.New("idempotency key already exists")

type IdempotencyRepo struct {
	db *sql.DB
}

func NewIdempotencyRepo(db *sql.DB) *IdempotencyRepo { return &IdempotencyRepo{db: db} }

// CreateInFlight inserts a new in_flight row for a key. Returns
// ErrIdempotencyKeyExists if the key is already present (duplicate-key
// error on the primary key), letting the caller treat it as an in-flight
// or completed request rather than processing twice.
func (r *IdempotencyRepo) CreateInFlight(ctx context.Context, key, operationType string, userID uint64, expiresAt time.Time) error {
	const q = "INSERT INTO idempotency_keys (`key`, operation_type, user_id, status, expires_at) VALUES (?, ?, ?, 'in_flight', ?)"
	_, err := r.db.ExecContext(ctx, q, key, operationType, userID, expiresAt.UTC())
	if err != nil {
		if isDuplicateKeyErr(err) {
			return ErrIdempotencyKeyExists
		}
		return err
	}
	return nil
}

func (r *IdempotencyRepo) GetByKey(ctx context.Context, key string) (*IdempotencyRecord, error) {
	const q = "SELECT `key`, operation_type, resource_id, user_id, status, response_snapshot, created_at, expires_at FROM idempotency_keys WHERE `key` = ?"
	var rec IdempotencyRecord
	var resourceID sql.NullString
	var snapshot []byte
	err := r.db.QueryRowContext(ctx, q, key).Scan(
		&rec.Key, &rec.OperationType, &resourceID, &rec.UserID, &rec.Status, &snapshot, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if resourceID.Valid {
		rec.ResourceID = &resourceID.String
	}
	rec.ResponseSnapshot = snapshot
	return &rec, nil
}

// CompleteWithSnapshot stores the final response body for a key and marks it
// completed, so replays of the same key can be answered without redoing the
// underlying operation.
func (r *IdempotencyRepo) CompleteWithSnapshot(ctx context.Context, key, resourceID string, snapshot []byte) error {
	const q = "UPDATE idempotency_keys SET status = 'completed', resource_id = ?, response_snapshot = ? WHERE `key` = ?"
	_, err := r.db.ExecContext(ctx, q, resourceID, snapshot, key)
	return err
}

// MarkFailed releases a key back to a failed state, allowing retry under
// the same key (the caller may choose to delete it instead for a clean retry).
func (r *IdempotencyRepo) MarkFailed(ctx context.Context, key string) error {
	const q = "UPDATE idempotency_keys SET status = 'failed' WHERE `key` = ?"
	_, err := r.db.ExecContext(ctx, q, key)
	return err
}

// DeleteExpired purges rows past their expiry, called by the expiry sweeper.
func (r *IdempotencyRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	const q = "DELETE FROM idempotency_keys WHERE expires_at <= ? LIMIT ?"
	res, err := r.db.ExecContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
