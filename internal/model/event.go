package model

import "time"

// EventStatus is the lifecycle state of an Event as read by the core. The
// core never writes this column; it is owned by the organizer surface.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

// Event mirrors the events table. The booking engine only reads id, status
// and start_date; organizer_id is carried for ownership checks on the
// organizer surface.
type Event struct {
	ID          uint64      `json:"id"`
	OrganizerID uint64      `json:"organizer_id"`
	Title       string      `json:"title"`
	Status      EventStatus `json:"status"`
	StartDate   time.Time   `json:"start_date"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsBookable reports whether the event currently accepts seat locks:
// published and not yet started.
func (e Event) IsBookable(now time.Time) bool {
	return e.Status == EventPublished && e.StartDate.After(now)
}
