package handler

// errors.go translates the apperr taxonomy to HTTP responses at the edge.
// Every handler that can fail should funnel its error through RespondErr
// instead of hand-rolling status codes, so the mapping stays in one place.

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.Validation:         http.StatusBadRequest,
	apperr.AuthRequired:       http.StatusUnauthorized,
	apperr.AuthRevoked:        http.StatusUnauthorized,
	apperr.NotFound:           http.StatusNotFound,
	apperr.Conflict:           http.StatusConflict,
	apperr.Stale:              http.StatusBadRequest,
	apperr.RateLimited:        http.StatusTooManyRequests,
	apperr.InFlight:           http.StatusConflict,
	apperr.PaymentVerifyFailed: http.StatusBadRequest,
	apperr.Internal:           http.StatusInternalServerError,
}

// RespondErr writes err as a {code, message} JSON body with the status the
// taxonomy prescribes. Internal errors are logged with a correlation id;
// client errors are not, to avoid drowning real incidents in 4xx noise.
func RespondErr(c echo.Context, log *logrus.Entry, err error) error {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if kind == apperr.Internal {
		log.WithError(err).
			WithField("request_id", c.Response().Header().Get("X-Request-ID")).
			Error("internal error")
	}
	return c.JSON(status, echo.Map{
		"code":    string(kind),
		"message": apperr.MessageOf(err),
	})
}
