package model

import "time"

// BookingStatus is the primary lifecycle state. Transition pending->confirmed
// is the only way into confirmed, and confirmed is terminal except for
// administrative refund marking (out of scope for this module).
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// PaymentStatus tracks the payment side independently of BookingStatus so a
// webhook replay or a failed capture can be represented without inventing a
// fifth BookingStatus value.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Booking is the aggregate the Coordinator drives through its state
// machine. Reference is the human-readable id tickets derive their id from.
type Booking struct {
	ID                 uint64        `json:"id"`
	Reference          string        `json:"reference"`
	EventID            uint64        `json:"event_id"`
	UserID             uint64        `json:"user_id"`
	TotalAmountCents   int64         `json:"total_amount_cents"`
	Status             BookingStatus `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	PaymentID          *string       `json:"payment_id,omitempty"`
	PaymentGateway     *string       `json:"payment_gateway,omitempty"`
	BookedAt           time.Time     `json:"booked_at"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
	ExpiresAt          time.Time     `json:"expires_at"`
	// TicketJobID is set transiently on the object ConfirmBooking returns; it
	// is never persisted, only handed back so a client can poll GetJobStatus
	// for the generate_tickets job it triggered.
	TicketJobID string `json:"ticket_job_id,omitempty"`
}

// BookingSeat is the many-to-many link between a Booking and a Seat row,
// recording the price charged when the booking was created so later seat-type
// price changes never retroactively alter an existing booking's total.
type BookingSeat struct {
	BookingID  uint64 `json:"booking_id"`
	SeatID     uint64 `json:"seat_id"`
	PricePaidCents int64 `json:"price_paid_cents"`
}

// SeatRequest is the input DTO for CreateBooking: a client-supplied
// (already-locked) seat label under a declared seat type.
type SeatRequest struct {
	SeatLabel  string `json:"seat_label"`
	SeatTypeID uint64 `json:"seat_type_id"`
}
