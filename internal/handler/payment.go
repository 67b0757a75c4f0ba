package handler

// payment.go exposes order creation, the provider webhook, and the polling
// fallback. The webhook reads the raw body before any JSON binding so the
// signature is verified over exactly the bytes the provider signed.

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/payment"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

type PaymentHandler struct {
	Provider *payment.Provider
	Webhook  *payment.WebhookHandler
	Bookings *repository.BookingRepo
	Log      *logrus.Logger
}

func NewPaymentHandler(provider *payment.Provider, webhook *payment.WebhookHandler, bookings *repository.BookingRepo, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{Provider: provider, Webhook: webhook, Bookings: bookings, Log: log}
}

type createOrderReq struct {
	BookingID uint64 `json:"booking_id"`
	AmountCents int64 `json:"amount"`
	Currency  string `json:"currency"`
}

// CreateOrder stamps a provider order id onto a booking the caller owns.
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	log := h.Log.WithField("handler", "payment.create_order")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return RespondErr(c, log, apperr.New(apperr.Validation, "invalid body"))
	}
	if req.BookingID == 0 || req.AmountCents <= 0 {
		return RespondErr(c, log, apperr.New(apperr.Validation, "booking_id and a positive amount are required"))
	}
	order, err := h.Provider.CreateOrder(c.Request().Context(), req.BookingID, userID, req.AmountCents)
	if err != nil {
		return RespondErr(c, log, err)
	}
	return c.JSON(http.StatusCreated, order)
}

const webhookSignatureHeader = "X-Razorpay-Signature"

// HandleWebhookRequest verifies and processes an asynchronous payment notification.
// Status codes follow the provider's retry contract: a transient failure
// answers 5xx so the provider redelivers; everything else, including a
// rejected signature, answers 200 since retrying cannot change the outcome.
func (h *PaymentHandler) HandleWebhookRequest(c echo.Context) error {
	log := h.Log.WithField("handler", "payment.webhook")
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.WithError(err).Warn("webhook: failed to read body")
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unreadable body"})
	}
	signature := c.Request().Header.Get(webhookSignatureHeader)

	outcome := h.Webhook.HandleWebhook(c.Request().Context(), rawBody, signature)
	if outcome.Retriable {
		log.WithField("message", outcome.Message).Error("webhook: transient failure, requesting retry")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": outcome.Message})
	}
	return c.JSON(http.StatusOK, echo.Map{"accepted": outcome.Accepted, "message": outcome.Message})
}

// VerifyOrder is the polling fallback a client uses when it never receives
// a realtime confirmation push.
func (h *PaymentHandler) VerifyOrder(c echo.Context) error {
	log := h.Log.WithField("handler", "payment.verify")
	userID, err := getUserID(c)
	if err != nil {
		return RespondErr(c, log, apperr.New(apperr.AuthRequired, "authentication required"))
	}
	orderID := c.Param("orderId")
	rec, err := h.Bookings.GetByOrderID(c.Request().Context(), orderID)
	if err != nil || rec.UserID != userID {
		return RespondErr(c, log, apperr.New(apperr.NotFound, "order not found"))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id":     rec.ID,
		"status":         rec.Status,
		"payment_status": rec.PaymentStatus,
	})
}
