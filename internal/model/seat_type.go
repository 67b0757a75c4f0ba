package model

// SeatType is a priced tier within an Event with a bounded quantity.
// available_quantity is the live, mutated projection; quantity is the
// capacity set by the organizer. Invariant A (see the booking coordinator
// and availability cache) ties the two together:
// available_quantity + count(live seats of this type) == quantity.
type SeatType struct {
	ID                uint64 `json:"id"`
	EventID           uint64 `json:"event_id"`
	Name              string `json:"name"`
	PriceCents        int64  `json:"price_cents"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity int    `json:"available_quantity"`
}
