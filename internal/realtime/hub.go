// Package realtime implements the broadcaster: a single-process event bus
// that fans lifecycle events out to connected clients through per-connection
// send queues. The transport (HTTP long-lived connection, SSE) lives at the
// handler layer; this package only knows about connections and events.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// sendQueueSize bounds how far a slow connection can lag before it is
// dropped rather than let one stalled client back-pressure the whole hub.
const sendQueueSize = 64

// EventType enumerates the payloads the hub ever publishes, matching the
// component design's published-event list.
type EventType string

const (
	EventEventCreated     EventType = "event_created"
	EventEventUpdated     EventType = "event_updated"
	EventEventDeleted     EventType = "event_deleted"
	EventSeatTypeCreated  EventType = "seat_type_created"
	EventSeatTypeUpdated  EventType = "seat_type_updated"
	EventSeatTypeDeleted  EventType = "seat_type_deleted"
	EventSeatLocked       EventType = "seat_locked"
	EventBookingCreated   EventType = "booking_created"
	EventBookingConfirmed EventType = "booking_confirmed"
	EventBookingCancelled EventType = "booking_cancelled"
	EventTicketsReady     EventType = "tickets_ready"
)

// Event is the envelope broadcast to every connection; Data is whatever
// shape that event type calls for, serialized once per broadcast.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Connection is a single subscriber's outbound queue. The handler layer
// that accepted the connection drains Send and writes it to the client in
// FIFO order.
type Connection struct {
	ID       string
	UserID   uint64 // 0 when unauthenticated
	Send     chan []byte
	hub      *Hub
	closed   bool
	closedMu sync.Mutex
}

func (c *Connection) deliver(payload []byte) {
	select {
	case c.Send <- payload:
	default:
		// Queue full: this connection is too slow to keep up with the
		// broadcast rate. Drop it rather than let it stall every publish.
		c.hub.Unregister(c)
	}
}

func (c *Connection) Close() {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Hub owns the connection registry and performs broadcasts. It never blocks
// a publisher on a slow subscriber.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	log         *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{connections: make(map[string]*Connection), log: log}
}

// Register adds a new subscriber and returns its handle. userID is 0 for an
// unauthenticated connection, which per the component design may still
// receive broadcasts.
func (h *Hub) Register(id string, userID uint64) *Connection {
	conn := &Connection{ID: id, UserID: userID, Send: make(chan []byte, sendQueueSize), hub: h}
	h.mu.Lock()
	h.connections[id] = conn
	h.mu.Unlock()
	return conn
}

// Unregister removes a connection and closes its queue. Safe to call more
// than once for the same connection.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	_, ok := h.connections[conn.ID]
	delete(h.connections, conn.ID)
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Broadcast fans an event out to every connection except excludeConnID (the
// originator of a client-initiated mutation, which gets its result via the
// direct response instead). A marshal failure or a per-connection delivery
// failure is logged and swallowed; it must never propagate back to the
// caller's mutation.
func (h *Hub) Broadcast(event Event, excludeConnID string) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).WithField("event_type", event.Type).Error("realtime: marshal broadcast event failed")
		return
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for id, conn := range h.connections {
		if id == excludeConnID {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		conn.deliver(payload)
	}
}

// ConnectionCount reports the number of currently registered connections,
// used by health/debug endpoints.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
