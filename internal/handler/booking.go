package handler

// booking.go exposes the booking coordinator's create/cancel surface, the
// caller's booking reads, plus the ticket-status polling endpoints. Create and cancel both
// accept an Idempotency-Key header, threaded through the idempotency store
// so a retried request replays the original response rather than double
// booking or double cancelling.

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/booking"
	"github.com/iliyamo/eventbooking-core/internal/idempotency"
	"github.com/iliyamo/eventbooking-core/internal/model"
	"github.com/iliyamo/eventbooking-core/internal/repository"
	"github.com/iliyamo/eventbooking-core/internal/ticket"
)

type BookingHandler struct {
	Coordinator *booking.Coordinator
	Bookings    *repository.BookingRepo
	Tickets     *ticket.Generator
	Idem        *idempotency.Store
	Log         *logrus.Logger
}

func NewBookingHandler(coordinator *booking.Coordinator, bookings *repository.BookingRepo, tickets *ticket.Generator, idem *idempotency.Store, log *logrus.Logger) *BookingHandler {
	return &BookingHandler{Coordinator: coordinator, Bookings: bookings, Tickets: tickets, Idem: idem, Log: log}
}

const idempotencyHeader = "Idempotency-Key"

type createBookingReq struct {
	EventID    uint64             `json:"event_id"`
	SeatDetails []model.SeatRequest `json:"seat_details"`
}

// Create turns held seat locks into a pending booking.
func (h *BookingHandler) Create(c echo.Context) error {
	log := h.Log.WithField("handler", "booking.create")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	if req.EventID == 0 || len(req.SeatDetails) == 0 {
		return RespondErr(c, log, apperr.New(apperr.Validation, "event_id and at least one seat_details entry are required"))
	}

	key := c.Request().Header.Get(idempotencyHeader)
	if key == "" {
		rec, err := h.Coordinator.CreateBooking(c.Request().Context(), req.EventID, userID, req.SeatDetails)
		if err != nil {
			return RespondErr(c, log, err)
		}
		return c.JSON(http.StatusCreated, rec)
	}
	return h.createIdempotent(c, log, key, req, userID)
}

func (h *BookingHandler) createIdempotent(c echo.Context, log *logrus.Entry, key string, req createBookingReq, userID uint64) error {
	ctx := c.Request().Context()
	outcome, err := h.Idem.Begin(ctx, key, "booking.create", userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.InFlight {
			return RespondErr(c, log, apperr.New(apperr.InFlight, "an identical request is already being processed"))
		}
		return RespondErr(c, log, err)
	}
	if !outcome.Proceed {
		return c.JSONBlob(http.StatusCreated, outcome.Snapshot)
	}

	rec, err := h.Coordinator.CreateBooking(ctx, req.EventID, userID, req.SeatDetails)
	if err != nil {
		_ = h.Idem.Fail(ctx, key)
		return RespondErr(c, log, err)
	}
	snapshot, _ := json.Marshal(rec)
	if err := h.Idem.Complete(ctx, key, rec.Reference, snapshot); err != nil {
		log.WithError(err).Warn("booking created but idempotency key could not be completed")
	}
	return c.JSONBlob(http.StatusCreated, snapshot)
}

// MyBookings returns the caller's bookings, optionally filtered by status
// and paginated.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	log := h.Log.WithField("handler", "booking.my_bookings")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	status := c.QueryParam("status")
	limit := queryIntDefault(c, "limit", 20)
	offset := queryIntDefault(c, "offset", 0)
	records, err := h.Bookings.ListByUser(c.Request().Context(), userID, status, limit, offset)
	if err != nil {
		return RespondErr(c, log, apperr.Wrap(apperr.Internal, "list bookings", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": records})
}

// GetByID returns a booking, visible to its owner.
func (h *BookingHandler) GetByID(c echo.Context) error {
	log := h.Log.WithField("handler", "booking.get")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid booking id"))
	}
	rec, err := h.Bookings.GetByID(c.Request().Context(), id)
	if err != nil || rec.UserID != userID {
		return RespondErr(c, log, apperr.New(apperr.NotFound, "booking not found"))
	}
	return c.JSON(http.StatusOK, rec)
}

type cancelBookingReq struct {
	Reason string `json:"reason"`
}

// Cancel releases a pending or unpaid-confirmed booking's seats.
func (h *BookingHandler) Cancel(c echo.Context) error {
	log := h.Log.WithField("handler", "booking.cancel")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid booking id"))
	}
	var req cancelBookingReq
	_ = c.Bind(&req)

	key := c.Request().Header.Get(idempotencyHeader)
	if key == "" {
		rec, err := h.Coordinator.CancelBooking(c.Request().Context(), id, userID, req.Reason)
		if err != nil {
			return RespondErr(c, log, err)
		}
		return c.JSON(http.StatusOK, rec)
	}
	return h.cancelIdempotent(c, log, key, id, userID, req.Reason)
}

func (h *BookingHandler) cancelIdempotent(c echo.Context, log *logrus.Entry, key string, bookingID, userID uint64, reason string) error {
	ctx := c.Request().Context()
	outcome, err := h.Idem.Begin(ctx, key, "booking.cancel", userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.InFlight {
			return RespondErr(c, log, apperr.New(apperr.InFlight, "an identical request is already being processed"))
		}
		return RespondErr(c, log, err)
	}
	if !outcome.Proceed {
		return c.JSONBlob(http.StatusOK, outcome.Snapshot)
	}

	rec, err := h.Coordinator.CancelBooking(ctx, bookingID, userID, reason)
	if err != nil {
		_ = h.Idem.Fail(ctx, key)
		return RespondErr(c, log, err)
	}
	snapshot, _ := json.Marshal(rec)
	if err := h.Idem.Complete(ctx, key, rec.Reference, snapshot); err != nil {
		log.WithError(err).Warn("booking cancelled but idempotency key could not be completed")
	}
	return c.JSONBlob(http.StatusOK, snapshot)
}

// ListBookingTickets returns every ticket generated for a booking the caller owns,
// along with the aggregate generation status.
func (h *BookingHandler) ListBookingTickets(c echo.Context) error {
	log := h.Log.WithField("handler", "booking.tickets")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid booking id"))
	}
	rec, err := h.Bookings.GetByID(c.Request().Context(), id)
	if err != nil || rec.UserID != userID {
		return RespondErr(c, log, apperr.New(apperr.NotFound, "booking not found"))
	}
	tickets, status, err := h.Tickets.GetTickets(c.Request().Context(), id)
	if err != nil {
		return RespondErr(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": status, "tickets": tickets})
}

// TicketStatus polls the state of the generate_tickets job a booking
// confirmation dispatched, identified by the job id ConfirmBooking handed
// back on the booking record (ticket_job_id).
func (h *BookingHandler) TicketStatus(c echo.Context) error {
	log := h.Log.WithField("handler", "booking.ticket_status")
	jobID := c.Param("jobId")
	st, err := h.Tickets.GetJobStatus(c.Request().Context(), jobID)
	if err != nil {
		return RespondErr(c, log, err)
	}
	return c.JSON(http.StatusOK, st)
}
