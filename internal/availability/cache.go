// Package availability implements the availability cache: a constant-time
// read of a seat type's remaining quantity backed by Redis, lazily
// re-derived from MySQL on miss.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

// Cache is the avail:{event_id}:{seat_type_id} projection described by the
// component design. It never becomes the source of truth; seat_types.available_quantity
// in MySQL always is.
type Cache struct {
	rdb       *redis.Client
	seatTypes *repository.SeatTypeRepo
	ttl       time.Duration
}

func New(rdb *redis.Client, seatTypes *repository.SeatTypeRepo, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, seatTypes: seatTypes, ttl: ttl}
}

func key(eventID, seatTypeID uint64) string {
	return fmt.Sprintf("avail:%d:%d", eventID, seatTypeID)
}

// Get returns the cached count, populating it from the relational store on
// a miss. A Redis outage falls through to the DB directly rather than
// failing the read (per spec.md §7's local-recovery policy).
func (c *Cache) Get(ctx context.Context, eventID, seatTypeID uint64) (int, error) {
	if c.rdb != nil {
		if v, err := c.rdb.Get(ctx, key(eventID, seatTypeID)).Int(); err == nil {
			return v, nil
		}
	}
	seatType, err := c.seatTypes.GetByID(ctx, seatTypeID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "load seat type", err)
	}
	if c.rdb != nil {
		c.rdb.Set(ctx, key(eventID, seatTypeID), seatType.AvailableQuantity, c.ttl)
	}
	return seatType.AvailableQuantity, nil
}

// Decrement lowers the cached counter by n, clamping at zero. The DB guard
// is what actually prevents crossing zero; this clamp only protects against
// a stale cache ever reporting negative availability.
func (c *Cache) Decrement(ctx context.Context, eventID, seatTypeID uint64, n int) {
	if c.rdb == nil {
		return
	}
	k := key(eventID, seatTypeID)
	v, err := c.rdb.DecrBy(ctx, k, int64(n)).Result()
	if err == nil && v < 0 {
		c.rdb.Set(ctx, k, 0, c.ttl)
	}
}

// Increment raises the cached counter by n, used after a release, expiry or
// cancellation restores availability.
func (c *Cache) Increment(ctx context.Context, eventID, seatTypeID uint64, n int) {
	if c.rdb == nil {
		return
	}
	c.rdb.IncrBy(ctx, key(eventID, seatTypeID), int64(n))
}

// Invalidate drops the cached counter for a single seat type, forcing the
// next Get to re-derive it from the DB.
func (c *Cache) Invalidate(ctx context.Context, eventID, seatTypeID uint64) {
	if c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, key(eventID, seatTypeID))
}

// InvalidateEvent drops the event-details cache entry, called alongside
// Invalidate when a mutation affects event-level listings.
func (c *Cache) InvalidateEvent(ctx context.Context, eventID uint64) {
	if c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, fmt.Sprintf("event:%d", eventID))
}
