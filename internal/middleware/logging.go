package middleware

// logging.go installs a logrus-backed request logger and stashes a
// request-scoped entry (request_id, plus user_id when one is already set on
// the echo context as the logger runs) into the request context so downstream components log with the same fields
// without re-deriving them.

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/logging"
)

// RequestLogger returns middleware that logs one line per request and
// attaches request_id (and user_id, when already set) to the request context.
func RequestLogger(base *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Request().Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			fields := logrus.Fields{"request_id": reqID}
			if uid := c.Get("user_id"); uid != nil {
				fields["user_id"] = uid
			}
			ctx := logging.IntoContext(c.Request().Context(), base, fields)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Request-ID", reqID)

			err := next(c)

			entry := base.WithFields(fields).WithFields(logrus.Fields{
				"method":   c.Request().Method,
				"path":     c.Path(),
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
			})
			if err != nil {
				entry.WithError(err).Warn("request failed")
			} else {
				entry.Info("request completed")
			}
			return err
		}
	}
}
