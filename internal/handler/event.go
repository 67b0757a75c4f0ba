package handler

// event.go exposes the organizer-facing event CRUD surface plus the public
// browse endpoint. Events themselves are read-only from the booking
// engine's perspective (see internal/model/event.go); this handler owns the
// write path the core only consumes.

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/availability"
	"github.com/iliyamo/eventbooking-core/internal/realtime"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

type EventHandler struct {
	Events *repository.EventRepo
	Avail  *availability.Cache
	Pub    *realtime.Publisher
	Log    *logrus.Logger
}

func NewEventHandler(events *repository.EventRepo, avail *availability.Cache, pub *realtime.Publisher, log *logrus.Logger) *EventHandler {
	return &EventHandler{Events: events, Avail: avail, Pub: pub, Log: log}
}

type createEventReq struct {
	Title     string    `json:"title"`
	StartDate time.Time `json:"start_date"`
}

// Create inserts a draft event owned by the calling organizer.
func (h *EventHandler) Create(c echo.Context) error {
	log := h.Log.WithField("handler", "event.create")
	organizerID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "missing organizer identity"))
	}
	var req createEventReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	if req.Title == "" || req.StartDate.IsZero() {
		return RespondErr(c, log, apperr.New(apperr.Validation, "title and start_date are required"))
	}
	rec, err := h.Events.Create(c.Request().Context(), organizerID, req.Title, req.StartDate)
	if err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "create event", err))
	}
	return c.JSON(http.StatusCreated, rec)
}

type updateEventReq struct {
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"start_date"`
}

// Update lets an organizer edit their own event, including flipping status
// to published (which opens it for seat locking) or cancelled.
func (h *EventHandler) Update(c echo.Context) error {
	log := h.Log.WithField("handler", "event.update")
	organizerID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "missing organizer identity"))
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	var req updateEventReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	rec, err := h.Events.UpdateForOrganizer(c.Request().Context(), id, organizerID, req.Title, req.Status, req.StartDate)
	if err != nil {
		if err == repository.ErrForbidden {
			return RespondErr(c, log, apperr.New(apperr.NotFound, "event not found"))
		}
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "update event", err))
	}
	ctx := c.Request().Context()
	h.Avail.InvalidateEvent(ctx, rec.ID)
	if h.Pub != nil {
		h.Pub.EventUpdated(realtime.EventUpdatedPayload{EventID: rec.ID}, "")
	}
	return c.JSON(http.StatusOK, rec)
}

// Delete removes an organizer's own event, rejecting the request with
// CONFLICT if any seat under it is still locked or booked.
func (h *EventHandler) Delete(c echo.Context) error {
	log := h.Log.WithField("handler", "event.delete")
	organizerID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "missing organizer identity"))
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	ctx := c.Request().Context()
	if err := h.Events.DeleteForOrganizer(ctx, id, organizerID); err != nil {
		switch {
		case err == repository.ErrForbidden || err == sql.ErrNoRows:
			return RespondErr(c, log, apperr.New(apperr.NotFound, "event not found"))
		case err == repository.ErrConflict:
			return RespondErr(c, log, apperr.New(apperr.Conflict, "event has locked or booked seats"))
		default:
			return RespondErr(c, log, apperr.Wrap(apperr.Internal, "delete event", err))
		}
	}
	h.Avail.InvalidateEvent(ctx, id)
	if h.Pub != nil {
		h.Pub.EventUpdated(realtime.EventUpdatedPayload{EventID: id}, "")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMine returns every event owned by the calling organizer.
func (h *EventHandler) ListMine(c echo.Context) error {
	log := h.Log.WithField("handler", "event.list_mine")
	organizerID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "missing organizer identity"))
	}
	events, err := h.Events.ListByOrganizer(c.Request().Context(), organizerID)
	if err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "list events", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// GetByID returns a single event; used by both organizer and public callers.
func (h *EventHandler) GetByID(c echo.Context) error {
	log := h.Log.WithField("handler", "event.get")
	id, err := parseUintParam(c, "id")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	rec, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.NotFound, "event not found"))
	}
	return c.JSON(http.StatusOK, rec)
}

// ListPublished is the public browse endpoint: published events starting
// on or after now, most imminent first.
func (h *EventHandler) ListPublished(c echo.Context) error {
	log := h.Log.WithField("handler", "event.list_published")
	limit := queryIntDefault(c, "limit", 50)
	events, err := h.Events.ListPublished(c.Request().Context(), time.Now().UTC(), limit)
	if err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "list published events", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}
