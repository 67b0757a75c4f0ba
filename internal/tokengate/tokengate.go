// Package tokengate implements the O(1) "is this token revoked?" check
// used at every privileged boundary. It mirrors blacklist state between
// Redis (fast path) and MySQL (authoritative): a KV outage falls back to
// MySQL, and the check fails open only when MySQL fails too.
package tokengate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

type Gate struct {
	rdb    *redis.Client
	tokens *repository.TokenRepo
}

func New(rdb *redis.Client, tokens *repository.TokenRepo) *Gate {
	return &Gate{rdb: rdb, tokens: tokens}
}

func blacklistKey(token string) string { return "blacklist:" + token }
func refreshKey(token string) string   { return "refresh_token:" + token }

// IsBlacklisted checks Redis first and trusts its answer, hit or miss. Only
// when Redis is absent or returns an error does it consult the DB; Redis is
// not repopulated from the DB result. A DB error is treated as "not
// blacklisted" rather than failing the request.
func (g *Gate) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	if g.rdb != nil {
		n, err := g.rdb.Exists(ctx, blacklistKey(token)).Result()
		if err == nil {
			return n > 0, nil
		}
	}
	blacklisted, err := g.tokens.IsBlacklisted(ctx, token)
	if err != nil {
		// Fail open: a DB error on this read path must not block an
		// otherwise-valid request from proceeding.
		return false, nil
	}
	return blacklisted, nil
}

// Blacklist revokes a token immediately in both stores.
func (g *Gate) Blacklist(ctx context.Context, token string, userID uint64, expiresAt time.Time) error {
	if err := g.tokens.Blacklist(ctx, token, userID, expiresAt); err != nil {
		return apperr.Wrap(apperr.Internal, "persist blacklist entry", err)
	}
	if g.rdb != nil {
		ttl := time.Until(expiresAt)
		if ttl > 0 {
			g.rdb.Set(ctx, blacklistKey(token), userID, ttl)
		}
	}
	return nil
}

// RefreshEntry is the cached shape of a refresh token's state.
type RefreshEntry struct {
	UserID    uint64
	Revoked   bool
	ExpiresAt time.Time
}

// CacheRefresh mirrors a refresh token's state into Redis so repeated
// refresh-token validations during a session do not hit MySQL every time.
func (g *Gate) CacheRefresh(ctx context.Context, tokenHash string, userID uint64, expiresAt time.Time) {
	if g.rdb == nil {
		return
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	g.rdb.Set(ctx, refreshKey(tokenHash), fmt.Sprintf("%d", userID), ttl)
}

// GetRefresh returns the cached refresh entry, or nil on a cache miss. It
// does not consult MySQL; callers fall back to TokenRepo.ValidateRefresh themselves.
func (g *Gate) GetRefresh(ctx context.Context, tokenHash string) *RefreshEntry {
	if g.rdb == nil {
		return nil
	}
	v, err := g.rdb.Get(ctx, refreshKey(tokenHash)).Result()
	if err != nil {
		return nil
	}
	var userID uint64
	fmt.Sscanf(v, "%d", &userID)
	return &RefreshEntry{UserID: userID}
}

// RevokeAllForUser revokes every active refresh token for a user in MySQL.
// The Redis refresh mirror keys are not touched; they expire via their TTL,
// since individual token hashes are not indexed by user in the cache.
func (g *Gate) RevokeAllForUser(ctx context.Context, userID uint64) error {
	if err := g.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return apperr.Wrap(apperr.Internal, "revoke refresh tokens", err)
	}
	return nil
}
