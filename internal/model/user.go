package model

import "time"

// User is the identity the core consumes by id only (see the purpose and
// scope notes on the identity boundary). Role is either ORGANIZER or
// CUSTOMER; organizer-only endpoints check it at the middleware layer.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the refresh_tokens table. Only the
// SHA-256 hash of the raw token is stored; see utils.HashRefreshRaw.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// BlacklistedToken models a revoked access token JTI consulted by the Token
// Gate at the boundary.
type BlacklistedToken struct {
	Token     string    // the access token's identifying string (or its hash)
	UserID    uint64    // owner, for RevokeAllForUser bookkeeping
	ExpiresAt time.Time // mirrors the token's own exp, so the row can be GC'd
}
