package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/model"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

// Confirmer is the narrow surface the webhook handler needs from the
// booking coordinator, kept as an interface so this package never imports
// the coordinator directly (it would otherwise be a dependency cycle, since
// the coordinator also sits above the ticket dispatcher).
type Confirmer interface {
	ConfirmBooking(ctx context.Context, bookingID uint64, paymentID, gateway string) (*model.Booking, error)
}

// webhookEvent is the provider's envelope. Only the fields this intake path
// cares about are modeled; unrecognized events pass the signature check and
// are otherwise ignored.
type webhookEvent struct {
	Event string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID          string `json:"id"`
				OrderID     string `json:"order_id"`
				AmountCents int64  `json:"amount"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Outcome tells the HTTP edge which status code to answer the provider
// with. Retriable outcomes must map to a 5xx so the provider redelivers;
// every other outcome is a 200, including a rejected signature, since
// retrying a bad signature can never succeed.
type Outcome struct {
	Retriable bool
	Accepted  bool
	Message   string
}

type WebhookHandler struct {
	db        *sql.DB
	bookings  *repository.BookingRepo
	confirmer Confirmer
	secret    string
	gateway   string
	log       *logrus.Logger
}

func NewWebhookHandler(db *sql.DB, bookings *repository.BookingRepo, confirmer Confirmer, secret, gateway string, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{db: db, bookings: bookings, confirmer: confirmer, secret: secret, gateway: gateway, log: log}
}

func (h *WebhookHandler) markFailed(ctx context.Context, bookingID uint64) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := h.bookings.MarkPaymentFailedTx(ctx, tx, bookingID); err != nil {
		return err
	}
	return tx.Commit()
}

func (h *WebhookHandler) verifySignature(rawBody []byte, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// HandleWebhook verifies the signature over the raw body, parses the event,
// and invokes ConfirmBooking for funds-acknowledged events. It never
// returns an error for a malformed or irrelevant event; Outcome.Accepted
// distinguishes "nothing to do" from "confirmed".
func (h *WebhookHandler) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) Outcome {
	if !h.verifySignature(rawBody, signatureHeader) {
		return Outcome{Retriable: false, Accepted: false, Message: "signature mismatch"}
	}

	var evt webhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return Outcome{Retriable: false, Accepted: false, Message: "malformed payload"}
	}

	switch evt.Event {
	case "payment.captured", "payment.authorized":
		return h.handleFundsAcknowledged(ctx, evt)
	case "payment.failed":
		return h.handleFailed(ctx, evt)
	default:
		return Outcome{Retriable: false, Accepted: true, Message: "event ignored"}
	}
}

func (h *WebhookHandler) handleFundsAcknowledged(ctx context.Context, evt webhookEvent) Outcome {
	orderID := evt.Payload.Payment.Entity.OrderID
	paymentID := evt.Payload.Payment.Entity.ID

	booking, err := h.bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		h.log.WithError(err).WithField("order_id", orderID).Warn("webhook: no booking for order")
		return Outcome{Retriable: false, Accepted: true, Message: "unknown order"}
	}

	if diff := evt.Payload.Payment.Entity.AmountCents - booking.TotalAmountCents; diff > amountToleranceCents || diff < -amountToleranceCents {
		h.log.WithFields(logrus.Fields{"booking_id": booking.ID, "order_id": orderID}).
			Warn("webhook: amount mismatch, rejecting")
		return Outcome{Retriable: false, Accepted: false, Message: "amount mismatch"}
	}

	if booking.Status == "confirmed" && booking.PaymentID != nil && *booking.PaymentID == paymentID {
		return Outcome{Retriable: false, Accepted: true, Message: "already confirmed"}
	}

	_, err = h.confirmer.ConfirmBooking(ctx, booking.ID, paymentID, h.gateway)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.Internal:
			h.log.WithError(err).WithField("booking_id", booking.ID).Error("webhook: transient confirmation failure")
			return Outcome{Retriable: true, Accepted: false, Message: "transient error"}
		case apperr.Conflict:
			// Another delivery already moved the booking state; treat as
			// accepted rather than retriable since redelivery cannot help.
			return Outcome{Retriable: false, Accepted: true, Message: "already handled"}
		default:
			h.log.WithError(err).WithField("booking_id", booking.ID).Warn("webhook: confirmation rejected")
			return Outcome{Retriable: false, Accepted: false, Message: apperr.MessageOf(err)}
		}
	}

	return Outcome{Retriable: false, Accepted: true, Message: "confirmed"}
}

func (h *WebhookHandler) handleFailed(ctx context.Context, evt webhookEvent) Outcome {
	orderID := evt.Payload.Payment.Entity.OrderID
	booking, err := h.bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		return Outcome{Retriable: false, Accepted: true, Message: "unknown order"}
	}
	if err := h.markFailed(ctx, booking.ID); err != nil {
		h.log.WithError(err).WithField("booking_id", booking.ID).Error("webhook: failed to record payment failure")
		return Outcome{Retriable: true, Accepted: false, Message: "transient error"}
	}
	return Outcome{Retriable: false, Accepted: true, Message: "payment failure recorded"}
}
