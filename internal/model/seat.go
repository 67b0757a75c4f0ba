package model

import "time"

// SeatStatus is the lifecycle state of a Seat row. A row only exists while
// it is reserved (virtual seats, see the availability cache/glossary);
// there is no "available" status.
type SeatStatus string

const (
	SeatLocked SeatStatus = "locked"
	SeatBooked SeatStatus = "booked"
)

// Seat is a live reservation against one label within a seat type. Its
// existence, not a flag on it, is what makes a label unavailable: deleting
// the row is how a lock is released or a booking's hold expires.
type Seat struct {
	ID          uint64     `json:"id"`
	EventID     uint64     `json:"event_id"`
	SeatTypeID  uint64     `json:"seat_type_id"`
	SeatLabel   string     `json:"seat_label"`
	Status      SeatStatus `json:"status"`
	OwnerUserID uint64     `json:"owner_user_id"`
	LockedAt    time.Time  `json:"locked_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	BookedAt    *time.Time `json:"booked_at,omitempty"`
}
