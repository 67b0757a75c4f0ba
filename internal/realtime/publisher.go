package realtime

// Publisher narrows Hub down to typed emit helpers for each published event,
// so call sites in the booking/lock/ticket components never hand-build the
// Event envelope themselves and risk drifting from the payload shapes below.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

type EventCreatedPayload struct {
	EventID uint64 `json:"event_id"`
	Title   string `json:"title"`
}

func (p *Publisher) EventCreated(payload EventCreatedPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventEventCreated, Data: payload}, originConnID)
}

type EventUpdatedPayload struct {
	EventID uint64 `json:"event_id"`
}

func (p *Publisher) EventUpdated(payload EventUpdatedPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventEventUpdated, Data: payload}, originConnID)
}

type EventDeletedPayload struct {
	EventID uint64 `json:"event_id"`
}

func (p *Publisher) EventDeleted(payload EventDeletedPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventEventDeleted, Data: payload}, originConnID)
}

type SeatTypePayload struct {
	EventID    uint64 `json:"event_id"`
	SeatTypeID uint64 `json:"seat_type_id"`
}

func (p *Publisher) SeatTypeCreated(payload SeatTypePayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventSeatTypeCreated, Data: payload}, originConnID)
}

func (p *Publisher) SeatTypeUpdated(payload SeatTypePayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventSeatTypeUpdated, Data: payload}, originConnID)
}

func (p *Publisher) SeatTypeDeleted(payload SeatTypePayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventSeatTypeDeleted, Data: payload}, originConnID)
}

// SeatLockedPayload mirrors the component design's exact field list so
// clients never need to reconcile two shapes for the same event.
type SeatLockedPayload struct {
	EventID           uint64 `json:"event_id"`
	SeatTypeID        uint64 `json:"seat_type_id"`
	SeatLabel         string `json:"seat_label"`
	UserID            uint64 `json:"user_id"`
	AvailableQuantity int    `json:"available_quantity"`
	Lock              string `json:"lock"` // "locked" | "released" | "extended"
}

func (p *Publisher) SeatLocked(payload SeatLockedPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventSeatLocked, Data: payload}, originConnID)
}

type BookingPayload struct {
	BookingID uint64 `json:"booking_id"`
	EventID   uint64 `json:"event_id"`
	Reference string `json:"reference"`
}

func (p *Publisher) BookingCreated(payload BookingPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventBookingCreated, Data: payload}, originConnID)
}

func (p *Publisher) BookingConfirmed(payload BookingPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventBookingConfirmed, Data: payload}, originConnID)
}

func (p *Publisher) BookingCancelled(payload BookingPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventBookingCancelled, Data: payload}, originConnID)
}

type TicketsReadyPayload struct {
	BookingID   uint64 `json:"booking_id"`
	TicketCount int    `json:"ticket_count"`
}

func (p *Publisher) TicketsReady(payload TicketsReadyPayload, originConnID string) {
	p.hub.Broadcast(Event{Type: EventTicketsReady, Data: payload}, originConnID)
}
