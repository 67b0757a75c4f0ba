package handler

// seattype.go exposes organizer-only CRUD over an event's pricing tiers.
// Per-seat availability bookkeeping belongs to the Seat Lock Manager and
// Booking Coordinator; this handler manages the tier's shape (name, price,
// capacity), and a capacity change shifts available_quantity by the same
// delta.

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/availability"
	"github.com/iliyamo/eventbooking-core/internal/realtime"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

type SeatTypeHandler struct {
	SeatTypes *repository.SeatTypeRepo
	Events    *repository.EventRepo
	Avail     *availability.Cache
	Pub       *realtime.Publisher
	Log       *logrus.Logger
}

func NewSeatTypeHandler(seatTypes *repository.SeatTypeRepo, events *repository.EventRepo, avail *availability.Cache, pub *realtime.Publisher, log *logrus.Logger) *SeatTypeHandler {
	return &SeatTypeHandler{SeatTypes: seatTypes, Events: events, Avail: avail, Pub: pub, Log: log}
}

// requireOwnedEvent loads the event and confirms the caller organizes it.
func (h *SeatTypeHandler) requireOwnedEvent(c echo.Context, eventID, organizerID uint64) (*repository.EventRecord, error) {
	event, err := h.Events.GetByID(c.Request().Context(), eventID)
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "event not found")
	}
	if event.OrganizerID != organizerID {
		return nil, apperr.New(apperr.NotFound, "event not found")
	}
	return event, nil
}

type createSeatTypeReq struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

// Create adds a new pricing tier to an event the caller organizes.
func (h *SeatTypeHandler) Create(c echo.Context) error {
	log := h.Log.WithField("handler", "seattype.create")
	organizerID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "missing organizer identity"))
	}
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	if _, err := h.requireOwnedEvent(c, eventID, organizerID); err != nil {
		return RespondErr(c, log, err)
	}
	var req createSeatTypeReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	if req.Name == "" || req.PriceCents < 0 || req.Quantity <= 0 {
		return RespondErr(c, log, apperr.New(apperr.Validation, "name, non-negative price_cents and a positive quantity are required"))
	}
	rec, err := h.SeatTypes.Create(c.Request().Context(), eventID, req.Name, req.PriceCents, req.Quantity)
	if err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "create seat type", err))
	}
	if h.Pub != nil {
		h.Pub.SeatTypeCreated(realtime.SeatTypePayload{EventID: eventID, SeatTypeID: rec.ID}, "")
	}
	return c.JSON(http.StatusCreated, rec)
}

type updateSeatTypeReq struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   *int   `json:"quantity,omitempty"`
}

// Update edits a seat type's name/price, and optionally its capacity.
// Raising quantity increases available_quantity by the same delta;
// lowering it below the live reservation count (the seats currently
// locked or booked against this tier) is rejected with CONFLICT.
func (h *SeatTypeHandler) Update(c echo.Context) error {
	log := h.Log.WithField("handler", "seattype.update")
	organizerID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "missing organizer identity"))
	}
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seatTypeID, err := parseUintParam(c, "seatTypeId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid seat type id"))
	}
	if _, err := h.requireOwnedEvent(c, eventID, organizerID); err != nil {
		return RespondErr(c, log, err)
	}
	existing, err := h.SeatTypes.GetByID(c.Request().Context(), seatTypeID)
	if err != nil || existing.EventID != eventID {
		return RespondErr(c, log, apperr.New(apperr.NotFound, "seat type not found"))
	}
	var req updateSeatTypeReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	ctx := c.Request().Context()
	if err := h.SeatTypes.UpdateNamePrice(ctx, seatTypeID, req.Name, req.PriceCents); err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "update seat type", err))
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return RespondErr(c, log, apperr.New(apperr.Validation, "quantity must not be negative"))
		}
		if err := h.SeatTypes.UpdateQuantity(ctx, seatTypeID, *req.Quantity); err != nil {
			if err == repository.ErrConflict {
				return RespondErr(c, log, apperr.New(apperr.Conflict, "quantity cannot be lowered below the live reservation count"))
			}
			return RespondErr(c, log, apperr.Wrap(apperr.Internal, "update seat type quantity", err))
		}
	}
	rec, err := h.SeatTypes.GetByID(ctx, seatTypeID)
	if err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "reload seat type", err))
	}
	h.Avail.Invalidate(ctx, eventID, seatTypeID)
	if h.Pub != nil {
		h.Pub.SeatTypeUpdated(realtime.SeatTypePayload{EventID: eventID, SeatTypeID: seatTypeID}, "")
	}
	return c.JSON(http.StatusOK, rec)
}

// Delete removes a seat type that currently has no live seats against it.
func (h *SeatTypeHandler) Delete(c echo.Context) error {
	log := h.Log.WithField("handler", "seattype.delete")
	organizerID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "missing organizer identity"))
	}
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	seatTypeID, err := parseUintParam(c, "seatTypeId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid seat type id"))
	}
	if _, err := h.requireOwnedEvent(c, eventID, organizerID); err != nil {
		return RespondErr(c, log, err)
	}
	existing, err := h.SeatTypes.GetByID(c.Request().Context(), seatTypeID)
	if err != nil || existing.EventID != eventID {
		return RespondErr(c, log, apperr.New(apperr.NotFound, "seat type not found"))
	}
	if existing.AvailableQuantity != existing.Quantity {
		return RespondErr(c, log, apperr.New(apperr.Conflict, "seat type still has locked or booked seats"))
	}
	if err := h.SeatTypes.Delete(c.Request().Context(), seatTypeID); err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "delete seat type", err))
	}
	h.Avail.Invalidate(c.Request().Context(), eventID, seatTypeID)
	if h.Pub != nil {
		h.Pub.SeatTypeDeleted(realtime.SeatTypePayload{EventID: eventID, SeatTypeID: seatTypeID}, "")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListByEvent returns every seat type for an event; unauthenticated, used
// by the public browse flow to show available tiers and prices.
func (h *SeatTypeHandler) ListByEvent(c echo.Context) error {
	log := h.Log.WithField("handler", "seattype.list")
	eventID, err := parseUintParam(c, "eventId")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid event id"))
	}
	types, err := h.SeatTypes.ListByEvent(c.Request().Context(), eventID)
	if err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "list seat types", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"seat_types": types})
}
