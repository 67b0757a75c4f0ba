package handler

// seat.go exposes the Seat Lock Manager's Acquire/Release/Extend/Get
// operations over HTTP. Lock/Release/Extend take their seat label in the
// request body; Get takes it from the route's :seatLabel segment, and
// BatchGet takes several at once in the body so a client can refresh a
// whole seat map in one round trip.

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/lock"
)

type SeatHandler struct {
	Locks *lock.Manager
	Log   *logrus.Logger
}

func NewSeatHandler(locks *lock.Manager, log *logrus.Logger) *SeatHandler {
	return &SeatHandler{Locks: locks, Log: log}
}

type lockSeatReq struct {
	SeatLabel string `json:"seat_label"`
}

// Lock acquires a seat under the given event/seat-type for the caller.
func (h *SeatHandler) Lock(c echo.Context) error {
	log := h.Log.WithField("handler", "seat.lock")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seatTypeID, err := parseUintParam(c, "seatTypeId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid seat type id"))
	}
	var req lockSeatReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	seat, err := h.Locks.Acquire(c.Request().Context(), eventID, seatTypeID, req.SeatLabel, userID)
	if err != nil {
		return RespondErr(c, log, err)
	}
	return c.JSON(http.StatusCreated, seat)
}

// Release gives up a held lock. Idempotent: releasing a lock the caller
// does not hold (or that doesn't exist) is a no-op, reported as 204.
func (h *SeatHandler) Release(c echo.Context) error {
	log := h.Log.WithField("handler", "seat.release")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seatTypeID, err := parseUintParam(c, "seatTypeId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid seat type id"))
	}
	var req lockSeatReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	if _, err := h.Locks.Release(c.Request().Context(), eventID, seatTypeID, req.SeatLabel, userID); err != nil {
		return RespondErr(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type extendSeatReq struct {
	SeatLabel         string `json:"seat_label"`
	AdditionalSeconds int    `json:"additional_seconds"`
}

// Extend pushes a held lock's expiry forward.
func (h *SeatHandler) Extend(c echo.Context) error {
	log := h.Log.WithField("handler", "seat.extend")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seatTypeID, err := parseUintParam(c, "seatTypeId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid seat type id"))
	}
	var req extendSeatReq
	if err := c.Bind(&req); err != nil || req.AdditionalSeconds <= 0 {
		return RespondErr(c, log, apperr.New(apperr.Validation, "seat_label and a positive additional_seconds are required"))
	}
	extended, err := h.Locks.Extend(c.Request().Context(), eventID, seatTypeID, req.SeatLabel, userID, req.AdditionalSeconds)
	if err != nil {
		return RespondErr(c, log, err)
	}
	if !extended {
		return RespondErr(c, log, apperr.New(apperr.Stale, "lock is no longer held by this user"))
	}
	return c.NoContent(http.StatusOK)
}

// Get returns the current lock holder for a single seat label, or null if free.
func (h *SeatHandler) Get(c echo.Context) error {
	log := h.Log.WithField("handler", "seat.get")
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seatTypeID, err := parseUintParam(c, "seatTypeId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid seat type id"))
	}
	label := c.Param("seatLabel")
	seat, err := h.Locks.Get(c.Request().Context(), eventID, seatTypeID, label)
	if err != nil {
		return RespondErr(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seat": seat})
}

type batchGetReq struct {
	SeatLabels []string `json:"seat_labels"`
}

// BatchGet looks up several labels within a seat type at once, used by the
// client to refresh a whole seat map in one round trip.
func (h *SeatHandler) BatchGet(c echo.Context) error {
	log := h.Log.WithField("handler", "seat.batch_get")
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seatTypeID, err := parseUintParam(c, "seatTypeId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid seat type id"))
	}
	var req batchGetReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	seats, err := h.Locks.BatchGet(c.Request().Context(), eventID, seatTypeID, req.SeatLabels)
	if err != nil {
		return RespondErr(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": seats})
}

// ListMine returns every seat the caller currently holds locked for an event.
func (h *SeatHandler) ListMine(c echo.Context) error {
	log := h.Log.WithField("handler", "seat.list_mine")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seats, err := h.Locks.ListByUser(c.Request().Context(), eventID, userID)
	if err != nil {
		return RespondErr(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": seats})
}
