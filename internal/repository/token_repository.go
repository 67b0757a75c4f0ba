package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// ValidateRefresh returns userID if a non-revoked, non-expired token exists.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid {
		return 0, sql.ErrNoRows
	}
	if time.Now().UTC().After(expiresAt) {
		return 0, sql.ErrNoRows
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes all user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// Blacklist inserts an access token's identifier into blacklisted_tokens so
// the token gate can reject it before its natural expiry (logout, revoke).
func (r *TokenRepo) Blacklist(ctx context.Context, token string, userID uint64, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO blacklisted_tokens (token, user_id, expires_at) VALUES (?,?,?)",
		token, userID, expiresAt.UTC())
	return err
}

// IsBlacklisted reports whether a token identifier has been revoked early.
// This is the durable fallback path; the token gate's primary check is a
// Redis SETEX mirror of the same row for low-latency lookups.
func (r *TokenRepo) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	var exists int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM blacklisted_tokens WHERE token=? AND expires_at > UTC_TIMESTAMP() LIMIT 1",
		token).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteExpiredRefresh purges refresh token rows past their expiry,
// revoked or not. Called by the expiry sweeper's hourly pass.
func (r *TokenRepo) DeleteExpiredRefresh(ctx context.Context, now time.Time, limit int) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ? LIMIT ?", now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredBlacklist purges rows whose natural token expiry has already
// passed; once expired the token is unusable anyway and the blacklist entry
// is redundant. Called by the expiry sweeper.
func (r *TokenRepo) DeleteExpiredBlacklist(ctx context.Context, now time.Time, limit int) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM blacklisted_tokens WHERE expires_at <= ? LIMIT ?", now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
