package model

import "time"

// TicketStatus tracks the Ticket Generator's async job progress for one
// seat within a confirmed booking.
type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketGenerated TicketStatus = "generated"
	TicketDelivered TicketStatus = "delivered"
	TicketFailed    TicketStatus = "failed"
)

// Ticket is one seat's deliverable within a confirmed booking. TicketID is
// derived deterministically from the booking reference and seat label, so
// it is stable across retries and safe to upsert on.
type Ticket struct {
	ID            uint64       `json:"id"`
	BookingID     uint64       `json:"booking_id"`
	SeatID        uint64       `json:"seat_id"`
	TicketID      string       `json:"ticket_id"`
	SeatLabel     string       `json:"seat_label"`
	SeatTypeName  string       `json:"seat_type_name"`
	PricePaidCents int64       `json:"price_paid_cents"`
	QRPayload     string       `json:"qr_payload"`
	Status        TicketStatus `json:"status"`
	EmailSent     bool         `json:"email_sent"`
	SMSSent       bool         `json:"sms_sent"`
	GeneratedAt   *time.Time   `json:"generated_at,omitempty"`
	DeliveredAt   *time.Time   `json:"delivered_at,omitempty"`
}

// AggregateStatus summarizes a booking's full ticket set for polling
// clients, per GetTickets.
type AggregateStatus string

const (
	AggregatePending   AggregateStatus = "pending"
	AggregateGenerating AggregateStatus = "generating"
	AggregatePartial   AggregateStatus = "partial"
	AggregateReady      AggregateStatus = "ready"
)
