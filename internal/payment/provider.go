// Package payment implements payment intake: creating a provider-side order
// against a pending booking, and verifying/dispatching the provider's
// asynchronous webhook back into the booking coordinator.
package payment

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

// amountToleranceCents is the maximum allowed discrepancy between a quoted
// amount and the booking's recorded total, guarding against rounding noise
// while still rejecting partial captures.
const amountToleranceCents = int64(1)

// Order is what CreateOrder hands back to the client to complete payment
// against the provider's checkout.
type Order struct {
	OrderID          string
	AmountMinorUnits int64
	Currency         string
	ExpiresAt        time.Time
}

type Provider struct {
	db       *sql.DB
	bookings *repository.BookingRepo
	gateway  string
	currency string
}

func New(db *sql.DB, bookings *repository.BookingRepo, gateway, currency string) *Provider {
	return &Provider{db: db, bookings: bookings, gateway: gateway, currency: currency}
}

func generateOrderID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ord_" + hex.EncodeToString(buf), nil
}

// CreateOrder verifies the booking exists, belongs to the caller, is
// pending, and that the quoted amount agrees with the booking's recorded
// total within tolerance, then stamps a freshly minted order id onto it.
func (p *Provider) CreateOrder(ctx context.Context, bookingID, userID uint64, amountCents int64) (*Order, error) {
	booking, err := p.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "booking not found", err)
	}
	if booking.UserID != userID {
		return nil, apperr.New(apperr.NotFound, "booking not found")
	}
	if booking.Status != "pending" {
		return nil, apperr.New(apperr.Conflict, "booking is not awaiting payment")
	}
	if diff := amountCents - booking.TotalAmountCents; diff > amountToleranceCents || diff < -amountToleranceCents {
		return nil, apperr.New(apperr.Validation, "amount does not match booking total")
	}

	orderID, err := generateOrderID()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "generate order id", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	if err := p.bookings.SetOrderIDTx(ctx, tx, bookingID, orderID, p.gateway); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.New(apperr.Conflict, "booking is not awaiting payment")
		}
		return nil, apperr.Wrap(apperr.Internal, "stamp order id", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit order id", err)
	}

	return &Order{
		OrderID:          orderID,
		AmountMinorUnits: booking.TotalAmountCents,
		Currency:         p.currency,
		ExpiresAt:        booking.ExpiresAt,
	}, nil
}
