// Package sweeper implements the expiry sweeper: the background process
// that returns the system to consistency when holders walk away without
// releasing a lock, and that ages out tokens the active paths no longer
// need to check.
package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/availability"
	"github.com/iliyamo/eventbooking-core/internal/booking"
	"github.com/iliyamo/eventbooking-core/internal/lock"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

const (
	lockSweepBatch    = 500
	tokenSweepBatch   = 1000
	bookingSweepBatch = 200
)

// Sweeper runs three periodic consistency passes: reclaiming expired seat
// locks, cancelling pending bookings past their expiry, and pruning expired
// token rows, each on its own configured interval. Every pass is guarded by
// an atomic flag so a slow pass is never run concurrently with itself.
type Sweeper struct {
	rdb         *redis.Client
	seats       *repository.SeatRepo
	seatTypes   *repository.SeatTypeRepo
	tokens      *repository.TokenRepo
	bookings    *repository.BookingRepo
	coordinator *booking.Coordinator
	avail       *availability.Cache

	lockInterval    time.Duration
	tokenInterval   time.Duration
	bookingInterval time.Duration

	lockRunning    atomic.Bool
	tokenRunning   atomic.Bool
	bookingRunning atomic.Bool

	log *logrus.Logger
}

func New(rdb *redis.Client, seats *repository.SeatRepo, seatTypes *repository.SeatTypeRepo, tokens *repository.TokenRepo, bookings *repository.BookingRepo, coordinator *booking.Coordinator, avail *availability.Cache, lockInterval, tokenInterval, bookingInterval time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		rdb: rdb, seats: seats, seatTypes: seatTypes, tokens: tokens, bookings: bookings, coordinator: coordinator, avail: avail,
		lockInterval: lockInterval, tokenInterval: tokenInterval, bookingInterval: bookingInterval, log: log,
	}
}

// Run blocks on three independent tickers until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	lockTicker := time.NewTicker(s.lockInterval)
	tokenTicker := time.NewTicker(s.tokenInterval)
	bookingTicker := time.NewTicker(s.bookingInterval)
	defer lockTicker.Stop()
	defer tokenTicker.Stop()
	defer bookingTicker.Stop()

	s.log.WithFields(logrus.Fields{
		"lock_interval":    s.lockInterval,
		"token_interval":   s.tokenInterval,
		"booking_interval": s.bookingInterval,
	}).Info("expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		case <-lockTicker.C:
			go s.sweepLocks(ctx)
		case <-tokenTicker.C:
			go s.sweepTokens(ctx)
		case <-bookingTicker.C:
			go s.sweepBookings(ctx)
		}
	}
}

// sweepLocks reclaims seat rows whose hold expired, restoring availability
// per seat-type and invalidating the cache for every affected event.
func (s *Sweeper) sweepLocks(ctx context.Context) {
	if !s.lockRunning.CompareAndSwap(false, true) {
		return
	}
	defer s.lockRunning.Store(false)

	expired, err := s.seats.ListExpiredLocked(ctx, time.Now().UTC(), lockSweepBatch)
	if err != nil {
		s.log.WithError(err).Error("sweeper: list expired locks failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	type seatTypeKey struct{ eventID, seatTypeID uint64 }
	restored := make(map[seatTypeKey]int)

	for _, seat := range expired {
		if err := s.seats.Delete(ctx, seat.ID); err != nil {
			s.log.WithError(err).WithField("seat_id", seat.ID).Warn("sweeper: delete expired seat failed")
			continue
		}
		key := seatTypeKey{eventID: seat.EventID, seatTypeID: seat.SeatTypeID}
		restored[key]++

		if s.rdb != nil {
			s.rdb.Del(ctx, lock.KeyFor(seat.EventID, seat.SeatTypeID, seat.SeatLabel))
		}
	}

	for key, count := range restored {
		if err := s.seatTypes.IncrementAvailable(ctx, key.seatTypeID, count); err != nil {
			s.log.WithError(err).WithField("seat_type_id", key.seatTypeID).Error("sweeper: restore availability failed")
			continue
		}
		s.avail.Increment(ctx, key.eventID, key.seatTypeID, count)
		s.avail.Invalidate(ctx, key.eventID, key.seatTypeID)
		s.avail.InvalidateEvent(ctx, key.eventID)
	}

	s.log.WithField("reclaimed", len(expired)).Info("sweeper: reclaimed expired seat locks")
}

// sweepBookings cancels pending bookings whose own expires_at has passed.
// sweepLocks only reaps the seat rows themselves; without this pass a
// pending booking left behind after its locks are gone would stay
// status='pending' forever since nothing else ever revisits it.
func (s *Sweeper) sweepBookings(ctx context.Context) {
	if !s.bookingRunning.CompareAndSwap(false, true) {
		return
	}
	defer s.bookingRunning.Store(false)

	expired, err := s.bookings.ListExpiredPending(ctx, time.Now().UTC(), bookingSweepBatch)
	if err != nil {
		s.log.WithError(err).Error("sweeper: list expired pending bookings failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	cancelled := 0
	for _, b := range expired {
		if err := s.coordinator.ExpirePending(ctx, b.ID); err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("sweeper: expire pending booking failed")
			continue
		}
		cancelled++
	}

	s.log.WithField("cancelled", cancelled).Info("sweeper: cancelled expired pending bookings")
}

// sweepTokens prunes blacklisted and refresh token rows past their natural
// expiry; neither needs to survive once the access token it guards could
// no longer pass signature verification anyway.
func (s *Sweeper) sweepTokens(ctx context.Context) {
	if !s.tokenRunning.CompareAndSwap(false, true) {
		return
	}
	defer s.tokenRunning.Store(false)

	now := time.Now().UTC()

	blacklistDeleted, err := s.tokens.DeleteExpiredBlacklist(ctx, now, tokenSweepBatch)
	if err != nil {
		s.log.WithError(err).Error("sweeper: delete expired blacklist rows failed")
	}

	refreshDeleted, err := s.tokens.DeleteExpiredRefresh(ctx, now, tokenSweepBatch)
	if err != nil {
		s.log.WithError(err).Error("sweeper: delete expired refresh rows failed")
	}

	if blacklistDeleted > 0 || refreshDeleted > 0 {
		s.log.WithFields(logrus.Fields{
			"blacklist_deleted": blacklistDeleted,
			"refresh_deleted":   refreshDeleted,
		}).Info("sweeper: pruned expired token rows")
	}
}
