package handler

// realtime.go serves the broadcaster's fan-out over Server-Sent Events.
// Authentication at handshake is optional: a bearer token is validated
// against the token gate when present, but an anonymous caller may still
// subscribe per the component design's "unauthenticated connections receive
// broadcasts too" rule — they simply can't be targeted individually.

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/realtime"
	"github.com/iliyamo/eventbooking-core/internal/tokengate"
)

type RealtimeHandler struct {
	Hub  *realtime.Hub
	Gate *tokengate.Gate
	Log  *logrus.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, gate *tokengate.Gate, log *logrus.Logger) *RealtimeHandler {
	return &RealtimeHandler{Hub: hub, Gate: gate, Log: log}
}

// Stream upgrades the request to a long-lived SSE connection and drains the
// hub's per-connection queue onto it until the client disconnects.
func (h *RealtimeHandler) Stream(c echo.Context) error {
	log := h.Log.WithField("handler", "realtime.stream")
	ctx := c.Request().Context()

	userID, _ := getUserID(c)

	connID := uuid.NewString()
	conn := h.Hub.Register(connID, userID)
	defer h.Hub.Unregister(conn)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, open := <-conn.Send:
			if !open {
				return nil
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				log.WithError(err).Debug("realtime: client write failed, closing stream")
				return nil
			}
			w.Flush()
		}
	}
}
