// Package ticket implements the ticket generator: QR-code computation and
// persistence offloaded from the booking-confirmation path, plus the job
// queue that dispatches it asynchronously.
package ticket

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/model"
	"github.com/iliyamo/eventbooking-core/internal/realtime"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

const qrSizePixels = 300

// Generator renders and persists one ticket per booked seat. Ticket IDs are
// derived deterministically from the booking reference and seat label so
// repeated generation attempts upsert the same row rather than duplicating it.
type Generator struct {
	tickets       *repository.TicketRepo
	seats         *repository.SeatRepo
	seatTypes     *repository.SeatTypeRepo
	broadcaster   *realtime.Publisher
	status        *StatusStore
	webhookSecret string
}

func New(tickets *repository.TicketRepo, seats *repository.SeatRepo, seatTypes *repository.SeatTypeRepo, broadcaster *realtime.Publisher, status *StatusStore, webhookSecret string) *Generator {
	return &Generator{tickets: tickets, seats: seats, seatTypes: seatTypes, broadcaster: broadcaster, status: status, webhookSecret: webhookSecret}
}

// GetJobStatus reports the last known state of a dispatched job, per
// spec.md §4.4's GetJobStatus(job_id) contract.
func (g *Generator) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	return g.status.Get(ctx, jobID)
}

// TicketID returns the deterministic ticket identifier for a booking
// reference and seat label, per spec.md invariant 6.
func TicketID(bookingReference, seatLabel string) string {
	return fmt.Sprintf("TKT-%s-%s", bookingReference, seatLabel)
}

func (g *Generator) signature(ticketID, bookingReference string) string {
	h := hmac.New(sha256.New, []byte(g.webhookSecret))
	h.Write([]byte(ticketID + ":" + bookingReference))
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateForBooking renders and stores a ticket for every seat attached to
// a confirmed booking. It is safe to call more than once; existing pending
// rows are looked up by ticket_id and regenerated in place.
func (g *Generator) GenerateForBooking(ctx context.Context, booking *model.Booking, seats []model.BookingSeat) ([]model.Ticket, error) {
	out := make([]model.Ticket, 0, len(seats))
	for _, bs := range seats {
		t, err := g.generateOne(ctx, booking, bs)
		if err != nil {
			return out, err
		}
		out = append(out, *t)
	}
	if len(out) > 0 && g.broadcaster != nil {
		g.broadcaster.TicketsReady(realtime.TicketsReadyPayload{BookingID: booking.ID, TicketCount: len(out)}, "")
	}
	return out, nil
}

func (g *Generator) generateOne(ctx context.Context, booking *model.Booking, bs model.BookingSeat) (*model.Ticket, error) {
	seat, err := g.seats.GetByID(ctx, bs.SeatID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load seat for ticket", err)
	}
	seatType, err := g.seatTypes.GetByID(ctx, seat.SeatTypeID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load seat type for ticket", err)
	}

	ticketID := TicketID(booking.Reference, seat.SeatLabel)
	existing, err := g.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		existing, err = g.tickets.CreatePending(ctx, booking.ID, seat.ID, ticketID, seat.SeatLabel, seatType.Name, bs.PricePaidCents)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "create ticket row", err)
		}
	}

	sig := g.signature(ticketID, booking.Reference)
	payload := fmt.Sprintf("ticket:%s;booking:%s;signature:%s", ticketID, booking.Reference, sig)

	qrImage, err := qrcode.Encode(payload, qrcode.Highest, qrSizePixels)
	if err != nil {
		_ = g.tickets.MarkFailed(ctx, existing.ID)
		return nil, apperr.Wrap(apperr.Internal, "render qr code", err)
	}
	encoded := base64.StdEncoding.EncodeToString(qrImage)

	if err := g.tickets.MarkGenerated(ctx, existing.ID, encoded); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "store qr payload", err)
	}

	refreshed, err := g.tickets.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "reload ticket", err)
	}
	return ticketToModel(refreshed), nil
}

// ValidateSignature recomputes a ticket's HMAC and compares it in constant
// time, used when a ticket is scanned at the door.
func (g *Generator) ValidateSignature(ticketID, bookingReference, signature string) bool {
	expected := g.signature(ticketID, bookingReference)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GetTickets returns every ticket for a booking along with the aggregate
// status the polling endpoint reports.
func (g *Generator) GetTickets(ctx context.Context, bookingID uint64) ([]model.Ticket, model.AggregateStatus, error) {
	records, err := g.tickets.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "list tickets", err)
	}
	tickets := make([]model.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, *ticketToModel(&r))
	}
	return tickets, aggregateStatus(tickets), nil
}

func aggregateStatus(tickets []model.Ticket) model.AggregateStatus {
	if len(tickets) == 0 {
		return model.AggregatePending
	}
	allGeneratedOrBetter := true
	anyFailed := false
	anyPending := false
	for _, t := range tickets {
		switch t.Status {
		case model.TicketFailed:
			anyFailed = true
		case model.TicketPending:
			anyPending = true
			allGeneratedOrBetter = false
		}
	}
	if anyFailed {
		return model.AggregatePartial
	}
	if anyPending {
		return model.AggregateGenerating
	}
	if allGeneratedOrBetter {
		return model.AggregateReady
	}
	return model.AggregateGenerating
}

func ticketToModel(r *repository.TicketRecord) *model.Ticket {
	return &model.Ticket{
		ID:             r.ID,
		BookingID:      r.BookingID,
		SeatID:         r.SeatID,
		TicketID:       r.TicketID,
		SeatLabel:      r.SeatLabel,
		SeatTypeName:   r.SeatTypeName,
		PricePaidCents: r.PricePaidCents,
		QRPayload:      r.QRPayload,
		Status:         model.TicketStatus(r.Status),
		EmailSent:      r.EmailSent,
		SMSSent:        r.SMSSent,
		GeneratedAt:    r.GeneratedAt,
		DeliveredAt:    r.DeliveredAt,
	}
}
