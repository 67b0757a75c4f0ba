// Package booking implements the booking coordinator: turning held seat
// locks into a pending booking, then into a confirmed one on payment, or
// releasing them on cancellation/timeout.
package booking

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/availability"
	"github.com/iliyamo/eventbooking-core/internal/model"
	"github.com/iliyamo/eventbooking-core/internal/realtime"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

// TicketDispatcher is the narrow interface the coordinator needs from the
// ticket generator: enqueue the generation job outside the confirmation
// transaction so a slow QR render never holds the booking lock.
type TicketDispatcher interface {
	Dispatch(ctx context.Context, booking *model.Booking, seats []model.BookingSeat) (jobID string, err error)
}

type Coordinator struct {
	db          *sql.DB
	bookings    *repository.BookingRepo
	seats       *repository.SeatRepo
	seatTypes   *repository.SeatTypeRepo
	avail       *availability.Cache
	tickets     TicketDispatcher
	broadcaster *realtime.Publisher
	bookingTTL  time.Duration
}

func New(db *sql.DB, bookings *repository.BookingRepo, seats *repository.SeatRepo, seatTypes *repository.SeatTypeRepo, avail *availability.Cache, tickets TicketDispatcher, broadcaster *realtime.Publisher, bookingTTL time.Duration) *Coordinator {
	return &Coordinator{db: db, bookings: bookings, seats: seats, seatTypes: seatTypes, avail: avail, tickets: tickets, broadcaster: broadcaster, bookingTTL: bookingTTL}
}

const referenceRetries = 5

// CreateBooking turns a set of held locks into a pending booking.
func (c *Coordinator) CreateBooking(ctx context.Context, eventID, userID uint64, requests []model.SeatRequest) (*model.Booking, error) {
	if len(requests) == 0 {
		return nil, apperr.New(apperr.Validation, "at least one seat is required")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	seatIDs := make([]uint64, 0, len(requests))
	wanted := make(map[string]model.SeatRequest, len(requests))
	for _, r := range requests {
		wanted[r.SeatLabel] = r
	}

	// Resolve requested labels to live rows, locking them FOR UPDATE.
	rows, err := c.findSeatsForLabelsTx(ctx, tx, eventID, requests)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		seatIDs = append(seatIDs, row.ID)
	}

	var totalCents int64
	seatTypePriceCache := map[uint64]int64{}
	for _, row := range rows {
		want, ok := wanted[row.SeatLabel]
		if !ok || want.SeatTypeID != row.SeatTypeID {
			return nil, apperr.New(apperr.Stale, "locked seats do not match the requested seat types")
		}
		if row.Status != "locked" || row.OwnerUserID != userID || time.Now().UTC().After(row.ExpiresAt) {
			return nil, apperr.New(apperr.Stale, "one or more locks are no longer held")
		}
		price, ok := seatTypePriceCache[row.SeatTypeID]
		if !ok {
			st, err := c.seatTypes.GetByIDTx(ctx, tx, row.SeatTypeID)
			if err != nil {
				return nil, apperr.Wrap(apperr.Internal, "load seat type", err)
			}
			price = st.PriceCents
			seatTypePriceCache[row.SeatTypeID] = price
		}
		totalCents += price
	}
	if len(rows) != len(requests) {
		return nil, apperr.New(apperr.Stale, "one or more seat locks were not found")
	}

	if already, err := c.anyAlreadyBookedTx(ctx, tx, seatIDs); err != nil {
		return nil, err
	} else if already {
		return nil, apperr.New(apperr.Conflict, "one or more seats are already part of another booking")
	}

	reference, err := c.generateUniqueReferenceTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(c.bookingTTL)
	rec, err := c.bookings.CreatePendingTx(ctx, tx, reference, eventID, userID, totalCents, expiresAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert booking", err)
	}

	seatRecords := make([]repository.BookingSeatRecord, 0, len(rows))
	for _, row := range rows {
		seatRecords = append(seatRecords, repository.BookingSeatRecord{
			BookingID:  rec.ID,
			SeatID:     row.ID,
			PriceCents: seatTypePriceCache[row.SeatTypeID],
		})
	}
	if err := c.bookings.CreateSeatsBulkTx(ctx, tx, seatRecords); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert booking seats", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit tx", err)
	}

	booking := bookingToModel(rec)
	if c.broadcaster != nil {
		c.broadcaster.BookingCreated(realtime.BookingPayload{BookingID: booking.ID, EventID: booking.EventID, Reference: booking.Reference}, "")
	}
	return booking, nil
}

func (c *Coordinator) findSeatsForLabelsTx(ctx context.Context, tx *sql.Tx, eventID uint64, requests []model.SeatRequest) ([]repository.SeatRecord, error) {
	placeholders := make([]string, 0, len(requests))
	args := make([]interface{}, 0, len(requests)*2+1)
	args = append(args, eventID)
	for _, r := range requests {
		placeholders = append(placeholders, "(seat_type_id = ? AND seat_label = ?)")
		args = append(args, r.SeatTypeID, r.SeatLabel)
	}
	q := `SELECT id, event_id, seat_type_id, seat_label, status, owner_user_id, locked_at, expires_at, booked_at
	      FROM seats WHERE event_id = ? AND (` + strings.Join(placeholders, " OR ") + `) FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lock seat rows", err)
	}
	defer rows.Close()
	var out []repository.SeatRecord
	for rows.Next() {
		var s repository.SeatRecord
		var bookedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.EventID, &s.SeatTypeID, &s.SeatLabel, &s.Status, &s.OwnerUserID, &s.LockedAt, &s.ExpiresAt, &bookedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan seat row", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Coordinator) anyAlreadyBookedTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64) (bool, error) {
	if len(seatIDs) == 0 {
		return false, nil
	}
	placeholders := make([]string, len(seatIDs))
	args := make([]interface{}, len(seatIDs))
	for i, id := range seatIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	q := `SELECT COUNT(*) FROM booking_seats bs
	      JOIN bookings b ON b.id = bs.booking_id
	      WHERE bs.seat_id IN (` + strings.Join(placeholders, ",") + `) AND b.status != 'cancelled'`
	var n int
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, apperr.Wrap(apperr.Internal, "check existing booking links", err)
	}
	return n > 0, nil
}

func (c *Coordinator) generateUniqueReferenceTx(ctx context.Context, tx *sql.Tx) (string, error) {
	for attempt := 0; attempt < referenceRetries; attempt++ {
		ref, err := newReference(time.Now().UTC())
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, "generate reference", err)
		}
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE reference = ?`, ref).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ref, nil
		}
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, "check reference uniqueness", err)
		}
	}
	return "", apperr.New(apperr.Internal, "failed to generate a unique booking reference")
}

func newReference(now time.Time) (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("BKG-%s-%04X", now.Format("2006-0102-150405"), buf), nil
}

// ConfirmBooking transitions a pending booking to confirmed upon a verified
// payment, flips its seats to booked, and hands tickets off to the
// generator outside the transaction.
func (c *Coordinator) ConfirmBooking(ctx context.Context, bookingID uint64, paymentID, gateway string) (*model.Booking, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	rec, err := c.bookings.GetByIDForUpdateTx(ctx, tx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "booking not found")
		}
		if errors.Is(err, repository.ErrLocked) {
			return nil, apperr.ErrInFlight
		}
		return nil, apperr.Wrap(apperr.Internal, "load booking", err)
	}

	if rec.Status == "confirmed" && rec.PaymentID != nil && *rec.PaymentID == paymentID {
		return bookingToModel(rec), nil
	}
	if rec.Status != "pending" || time.Now().UTC().After(rec.ExpiresAt) {
		return nil, apperr.New(apperr.Stale, "booking is no longer pending")
	}

	seatLinks, err := c.bookings.ListSeatsByBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load booking seats", err)
	}
	seatIDs := make([]uint64, 0, len(seatLinks))
	for _, l := range seatLinks {
		seatIDs = append(seatIDs, l.SeatID)
	}
	seatRows, err := c.seats.ListByIDsTx(ctx, tx, seatIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lock seat rows", err)
	}
	for _, s := range seatRows {
		if s.Status != "locked" {
			return nil, apperr.New(apperr.Stale, "seat is no longer locked")
		}
	}

	if err := c.bookings.ConfirmTx(ctx, tx, bookingID, paymentID, gateway); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.New(apperr.Conflict, "booking was already confirmed concurrently")
		}
		return nil, apperr.Wrap(apperr.Internal, "confirm booking", err)
	}
	for _, s := range seatRows {
		if err := c.seats.MarkBookedTx(ctx, tx, s.ID); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "mark seat booked", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit tx", err)
	}

	confirmed, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "reload confirmed booking", err)
	}
	booking := bookingToModel(confirmed)

	c.avail.InvalidateEvent(ctx, confirmed.EventID)
	for _, s := range seatRows {
		c.avail.Invalidate(ctx, confirmed.EventID, s.SeatTypeID)
	}

	if c.tickets != nil {
		bookingSeats := make([]model.BookingSeat, 0, len(seatLinks))
		for _, l := range seatLinks {
			bookingSeats = append(bookingSeats, model.BookingSeat{BookingID: l.BookingID, SeatID: l.SeatID, PricePaidCents: l.PriceCents})
		}
		jobID, err := c.tickets.Dispatch(ctx, booking, bookingSeats)
		if err != nil {
			// Ticket dispatch failures never unwind a confirmed booking; they
			// are the generator's problem to retry.
			_ = err
		}
		booking.TicketJobID = jobID
	}

	if c.broadcaster != nil {
		c.broadcaster.BookingConfirmed(realtime.BookingPayload{BookingID: booking.ID, EventID: booking.EventID, Reference: booking.Reference}, "")
	}

	return booking, nil
}

// CancelBooking releases every locked seat tied to a booking and restores
// availability. It is safe to call multiple times for the same booking.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID, userID uint64, reason string) (*model.Booking, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	rec, err := c.bookings.GetByIDForUpdateTx(ctx, tx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "booking not found")
		}
		if errors.Is(err, repository.ErrLocked) {
			return nil, apperr.ErrInFlight
		}
		return nil, apperr.Wrap(apperr.Internal, "load booking", err)
	}
	if rec.UserID != userID {
		return nil, apperr.New(apperr.NotFound, "booking not found")
	}
	if rec.Status == "cancelled" {
		return bookingToModel(rec), nil
	}
	if rec.Status == "confirmed" && rec.PaymentStatus == "completed" {
		return nil, apperr.New(apperr.Conflict, "a confirmed and paid booking must be refunded, not cancelled")
	}

	seatLinks, err := c.bookings.ListSeatsByBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load booking seats", err)
	}
	seatIDs := make([]uint64, 0, len(seatLinks))
	for _, l := range seatLinks {
		seatIDs = append(seatIDs, l.SeatID)
	}
	seatRows, err := c.seats.ListByIDsTx(ctx, tx, seatIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lock seat rows", err)
	}

	restoreByType := map[uint64]int{}
	for _, s := range seatRows {
		if s.Status != "locked" {
			continue
		}
		if err := c.seats.DeleteTx(ctx, tx, s.ID); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "delete seat row", err)
		}
		restoreByType[s.SeatTypeID]++
	}
	if err := c.bookings.DeleteSeatsByBookingTx(ctx, tx, bookingID); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "delete booking seat links", err)
	}
	for seatTypeID, n := range restoreByType {
		if err := c.seatTypes.IncrementAvailableTx(ctx, tx, seatTypeID, n); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "restore availability", err)
		}
	}

	if err := c.bookings.CancelTx(ctx, tx, bookingID, reason); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.New(apperr.Conflict, "booking could not be cancelled")
		}
		return nil, apperr.Wrap(apperr.Internal, "cancel booking", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit tx", err)
	}

	cancelled, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "reload cancelled booking", err)
	}

	for seatTypeID, n := range restoreByType {
		c.avail.Increment(ctx, cancelled.EventID, seatTypeID, n)
		c.avail.Invalidate(ctx, cancelled.EventID, seatTypeID)
	}
	c.avail.InvalidateEvent(ctx, cancelled.EventID)

	booking := bookingToModel(cancelled)
	if c.broadcaster != nil {
		c.broadcaster.BookingCancelled(realtime.BookingPayload{BookingID: booking.ID, EventID: booking.EventID, Reference: booking.Reference}, "")
	}
	return booking, nil
}

// ExpirePending cancels a pending booking whose seat locks already timed
// out, called by the expiry sweeper rather than a user-initiated cancel.
// Unlike CancelBooking it is not owner-scoped, and a booking another
// request is actively confirming or cancelling is simply left for the next
// sweep tick rather than failed loudly.
func (c *Coordinator) ExpirePending(ctx context.Context, bookingID uint64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	rec, err := c.bookings.GetByIDForUpdateTx(ctx, tx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrLocked) || errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return apperr.Wrap(apperr.Internal, "load booking", err)
	}
	if rec.Status != "pending" {
		return nil
	}

	seatLinks, err := c.bookings.ListSeatsByBookingTx(ctx, tx, bookingID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "load booking seats", err)
	}
	seatIDs := make([]uint64, 0, len(seatLinks))
	for _, l := range seatLinks {
		seatIDs = append(seatIDs, l.SeatID)
	}
	seatRows, err := c.seats.ListByIDsTx(ctx, tx, seatIDs)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "lock seat rows", err)
	}

	restoreByType := map[uint64]int{}
	for _, s := range seatRows {
		if s.Status != "locked" {
			continue
		}
		if err := c.seats.DeleteTx(ctx, tx, s.ID); err != nil {
			return apperr.Wrap(apperr.Internal, "delete seat row", err)
		}
		restoreByType[s.SeatTypeID]++
	}
	if err := c.bookings.DeleteSeatsByBookingTx(ctx, tx, bookingID); err != nil {
		return apperr.Wrap(apperr.Internal, "delete booking seat links", err)
	}
	for seatTypeID, n := range restoreByType {
		if err := c.seatTypes.IncrementAvailableTx(ctx, tx, seatTypeID, n); err != nil {
			return apperr.Wrap(apperr.Internal, "restore availability", err)
		}
	}

	if err := c.bookings.CancelTx(ctx, tx, bookingID, "seat lock expired before payment"); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil
		}
		return apperr.Wrap(apperr.Internal, "cancel expired booking", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Internal, "commit tx", err)
	}

	for seatTypeID, n := range restoreByType {
		c.avail.Increment(ctx, rec.EventID, seatTypeID, n)
		c.avail.Invalidate(ctx, rec.EventID, seatTypeID)
	}
	c.avail.InvalidateEvent(ctx, rec.EventID)

	if c.broadcaster != nil {
		c.broadcaster.BookingCancelled(realtime.BookingPayload{BookingID: rec.ID, EventID: rec.EventID, Reference: rec.Reference}, "")
	}
	return nil
}

func bookingToModel(r *repository.BookingRecord) *model.Booking {
	return &model.Booking{
		ID:                 r.ID,
		Reference:          r.Reference,
		EventID:            r.EventID,
		UserID:             r.UserID,
		TotalAmountCents:   r.TotalAmountCents,
		Status:             model.BookingStatus(r.Status),
		PaymentStatus:      model.PaymentStatus(r.PaymentStatus),
		PaymentID:          r.PaymentID,
		PaymentGateway:     r.PaymentGateway,
		BookedAt:           r.BookedAt,
		ConfirmedAt:        r.ConfirmedAt,
		CancelledAt:        r.CancelledAt,
		CancellationReason: r.CancellationReason,
		ExpiresAt:          r.ExpiresAt,
	}
}
