package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	h := NewHub(testLogger())
	conn := h.Register("conn-1", 42)
	assert.Equal(t, 1, h.ConnectionCount())

	h.Broadcast(Event{Type: EventSeatLocked, Data: map[string]string{"seat": "A1"}}, "")

	select {
	case payload := <-conn.Send:
		var got Event
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, EventSeatLocked, got.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast payload, got none")
	}
}

func TestHub_BroadcastExcludesOriginator(t *testing.T) {
	h := NewHub(testLogger())
	originator := h.Register("conn-origin", 1)
	other := h.Register("conn-other", 2)

	h.Broadcast(Event{Type: EventBookingCreated}, "conn-origin")

	select {
	case <-originator.Send:
		t.Fatal("originator should not receive its own broadcast")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case <-other.Send:
	case <-time.After(time.Second):
		t.Fatal("other connection should have received the broadcast")
	}
}

func TestHub_Unregister_RemovesConnectionAndClosesQueue(t *testing.T) {
	h := NewHub(testLogger())
	conn := h.Register("conn-1", 0)
	require.Equal(t, 1, h.ConnectionCount())

	h.Unregister(conn)
	assert.Equal(t, 0, h.ConnectionCount())

	_, open := <-conn.Send
	assert.False(t, open, "Send channel should be closed after Unregister")
}

func TestHub_Unregister_IsSafeToCallTwice(t *testing.T) {
	h := NewHub(testLogger())
	conn := h.Register("conn-1", 0)

	h.Unregister(conn)
	assert.NotPanics(t, func() { h.Unregister(conn) })
}

func TestHub_DeliverDropsSlowConnectionRatherThanBlock(t *testing.T) {
	h := NewHub(testLogger())
	conn := h.Register("conn-slow", 0)

	for i := 0; i < sendQueueSize; i++ {
		h.Broadcast(Event{Type: EventSeatLocked}, "")
	}
	assert.Equal(t, 1, h.ConnectionCount())

	h.Broadcast(Event{Type: EventSeatLocked}, "")

	assert.Equal(t, 0, h.ConnectionCount(), "connection should be dropped once its queue fills up")
	_ = conn
}
