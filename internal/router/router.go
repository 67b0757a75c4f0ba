// Package router wires every handler onto its route, grouping by the
// middleware a given surface needs: public browse endpoints stay
// unauthenticated, organizer-only writes get both JWTAuth and RequireRole,
// and the payment webhook is deliberately left outside JWTAuth since the
// provider, not a logged-in user, calls it.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/eventbooking-core/internal/config"
	"github.com/iliyamo/eventbooking-core/internal/handler"
	"github.com/iliyamo/eventbooking-core/internal/middleware"
	"github.com/iliyamo/eventbooking-core/internal/tokengate"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth mounts registration/login/refresh/logout plus the protected
// /v1/me probe, matching the auth handler's own session model.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, gate *tokengate.Gate) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	protected := e.Group("/v1")
	protected.Use(middleware.JWTAuth(jwtSecret, gate))
	protected.Use(middleware.RequireRole("ORGANIZER", "CUSTOMER"))
	protected.GET("/me", a.Me)

	e.POST("/v1/logout", a.Logout)
}

// Handlers bundles every domain handler the API surface needs, so the
// composition root can build them once and hand them here together.
type Handlers struct {
	Events    *handler.EventHandler
	SeatTypes *handler.SeatTypeHandler
	Seats     *handler.SeatHandler
	Bookings  *handler.BookingHandler
	Payments  *handler.PaymentHandler
	Realtime  *handler.RealtimeHandler
}

// RegisterAPI mounts the booking platform's domain surface under /api/v1.
// Organizer-only routes carry RequireRole("ORGANIZER"); everything else
// that mutates state requires only a valid session, and browse/poll
// endpoints are left open to anonymous callers.
func RegisterAPI(e *echo.Echo, h Handlers, cfg config.Config, rdb *redis.Client, gate *tokengate.Gate) {
	authed := middleware.JWTAuth(cfg.JWTSecret, gate)
	organizerOnly := middleware.RequireRole("ORGANIZER")
	anyRole := middleware.RequireRole("ORGANIZER", "CUSTOMER")
	cache := middleware.NewRedisCache(cfg.Cache, rdb)
	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb)

	api := e.Group("/api/v1", limiter)

	// Public browse surface.
	api.GET("/events", h.Events.ListPublished, cache)
	api.GET("/events/:id", h.Events.GetByID, cache)
	api.GET("/events/:eventId/seat-types", h.SeatTypes.ListByEvent, cache)
	api.GET("/events/:eventId/seat-types/:seatTypeId/seats/:seatLabel", h.Seats.Get)
	api.POST("/events/:eventId/seat-types/:seatTypeId/seats/batch-get", h.Seats.BatchGet)

	// Organizer event/seat-type management.
	organizer := api.Group("", authed, organizerOnly)
	organizer.POST("/events", h.Events.Create)
	organizer.PUT("/events/:id", h.Events.Update)
	organizer.GET("/events/mine", h.Events.ListMine)
	organizer.DELETE("/events/:id", h.Events.Delete)
	organizer.POST("/events/:eventId/seat-types", h.SeatTypes.Create)
	organizer.PUT("/events/:eventId/seat-types/:seatTypeId", h.SeatTypes.Update)
	organizer.DELETE("/events/:eventId/seat-types/:seatTypeId", h.SeatTypes.Delete)

	// Seat locking: any authenticated caller.
	seats := api.Group("", authed, anyRole)
	seats.POST("/seats/:eventId/seat-types/:seatTypeId/lock", h.Seats.Lock)
	seats.POST("/seats/:eventId/seat-types/:seatTypeId/release", h.Seats.Release)
	seats.POST("/seats/:eventId/seat-types/:seatTypeId/extend", h.Seats.Extend)
	seats.GET("/seats/:eventId/mine", h.Seats.ListMine)

	// Booking lifecycle.
	bookings := api.Group("", authed, anyRole)
	bookings.POST("/bookings/create", h.Bookings.Create)
	bookings.GET("/bookings/my-bookings", h.Bookings.MyBookings)
	bookings.GET("/bookings/:id", h.Bookings.GetByID)
	bookings.POST("/bookings/:id/cancel", h.Bookings.Cancel)
	bookings.GET("/bookings/:id/tickets", h.Bookings.ListBookingTickets)
	api.GET("/bookings/ticket-status/:jobId", h.Bookings.TicketStatus)

	// Payment intake. create-order and verify need an authenticated owner;
	// webhook is called by the provider and carries its own signature.
	payments := api.Group("", authed, anyRole)
	payments.POST("/payments/create-order", h.Payments.CreateOrder)
	payments.GET("/payments/verify/:orderId", h.Payments.VerifyOrder)
	api.POST("/payments/webhook", h.Payments.HandleWebhookRequest)

	// Realtime broadcast stream; auth optional per the broadcaster's
	// anonymous-subscriber rule, but JWTAuth still runs when a bearer is
	// present so the connection can be attributed to a user.
	api.GET("/stream", h.Realtime.Stream, optionalAuth(cfg.JWTSecret, gate))
}

// optionalAuth runs JWTAuth only when an Authorization header is present,
// letting anonymous clients through to the realtime stream while still
// attributing authenticated ones.
func optionalAuth(secret string, gate *tokengate.Gate) echo.MiddlewareFunc {
	authed := middleware.JWTAuth(secret, gate)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				return next(c)
			}
			return authed(next)(c)
		}
	}
}
