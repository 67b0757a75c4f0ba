// Package app is the composition root: it wires every repository, cache,
// and domain component into the handlers the router exposes, then owns the
// HTTP server's lifecycle alongside the background sweeper and ticket
// worker goroutines.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventbooking-core/internal/availability"
	"github.com/iliyamo/eventbooking-core/internal/booking"
	"github.com/iliyamo/eventbooking-core/internal/config"
	"github.com/iliyamo/eventbooking-core/internal/database"
	"github.com/iliyamo/eventbooking-core/internal/handler"
	"github.com/iliyamo/eventbooking-core/internal/idempotency"
	"github.com/iliyamo/eventbooking-core/internal/lock"
	applog "github.com/iliyamo/eventbooking-core/internal/logging"
	"github.com/iliyamo/eventbooking-core/internal/middleware"
	"github.com/iliyamo/eventbooking-core/internal/payment"
	"github.com/iliyamo/eventbooking-core/internal/realtime"
	"github.com/iliyamo/eventbooking-core/internal/repository"
	"github.com/iliyamo/eventbooking-core/internal/router"
	"github.com/iliyamo/eventbooking-core/internal/sweeper"
	"github.com/iliyamo/eventbooking-core/internal/ticket"
	"github.com/iliyamo/eventbooking-core/internal/tokengate"
)

// App owns every long-lived dependency of the running service.
type App struct {
	cfg config.Config
	log *logrus.Logger

	db  *sql.DB
	rdb *redis.Client

	echo *echo.Echo

	ticketWorker *ticket.Worker
	sweep        *sweeper.Sweeper
}

// New builds the composition root: connects to MySQL and Redis, runs
// pending migrations, and wires every component and handler together.
func New(cfg config.Config) (*App, error) {
	log := applog.New(cfg.Env)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable at startup, continuing degraded")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	seatTypes := repository.NewSeatTypeRepo(db)
	seats := repository.NewSeatRepo(db)
	bookings := repository.NewBookingRepo(db)
	tickets := repository.NewTicketRepo(db)
	idemRepo := repository.NewIdempotencyRepo(db)

	hub := realtime.NewHub(log)
	publisher := realtime.NewPublisher(hub)

	gate := tokengate.New(rdb, tokens)
	avail := availability.New(rdb, seatTypes, cfg.AvailabilityTTL)
	lockMgr := lock.New(rdb, db, seats, seatTypes, events, avail, publisher, cfg.LockTTL)

	jobStatus := ticket.NewStatusStore(rdb)
	notifier := ticket.NewLogNotifier(log)
	ticketGen := ticket.New(tickets, seats, seatTypes, publisher, jobStatus, cfg.WebhookSecret)
	dispatcher := ticket.NewDispatcher(cfg.RabbitMQURL, ticketGen, users, jobStatus, notifier, log)
	ticketWorker := ticket.NewWorker(cfg.RabbitMQURL, ticketGen, jobStatus, notifier, cfg.TicketWorkerConcurrency, log)

	coordinator := booking.New(db, bookings, seats, seatTypes, avail, dispatcher, publisher, cfg.BookingTTL)
	idemStore := idempotency.New(idemRepo, cfg.IdempotencyTTL)

	paymentProvider := payment.New(db, bookings, cfg.PaymentGateway, cfg.PaymentCurrency)
	webhookHandler := payment.NewWebhookHandler(db, bookings, coordinator, cfg.WebhookSecret, cfg.PaymentGateway, log)

	sweep := sweeper.New(rdb, seats, seatTypes, tokens, bookings, coordinator, avail, cfg.LockSweepInterval, cfg.TokenSweepInterval, cfg.BookingSweepInterval, log)

	authHandler := handler.NewAuthHandler(cfg, users, tokens, gate)
	eventHandler := handler.NewEventHandler(events, avail, publisher, log)
	seatTypeHandler := handler.NewSeatTypeHandler(seatTypes, events, avail, publisher, log)
	seatHandler := handler.NewSeatHandler(lockMgr, log)
	bookingHandler := handler.NewBookingHandler(coordinator, bookings, ticketGen, idemStore, log)
	paymentHandler := handler.NewPaymentHandler(paymentProvider, webhookHandler, bookings, log)
	realtimeHandler := handler.NewRealtimeHandler(hub, gate, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret, gate)
	router.RegisterAPI(e, router.Handlers{
		Events:    eventHandler,
		SeatTypes: seatTypeHandler,
		Seats:     seatHandler,
		Bookings:  bookingHandler,
		Payments:  paymentHandler,
		Realtime:  realtimeHandler,
	}, cfg, rdb, gate)

	return &App{
		cfg:          cfg,
		log:          log,
		db:           db,
		rdb:          rdb,
		echo:         e,
		ticketWorker: ticketWorker,
		sweep:        sweep,
	}, nil
}

// Run starts the HTTP server and background workers, blocking until ctx is
// cancelled, then drains in-flight work within a bounded deadline.
func (a *App) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go a.sweep.Run(workerCtx)
	go a.ticketWorker.Run(workerCtx)

	addr := ":" + a.cfg.Port
	serverErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", addr).Info("http server starting")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	return a.Shutdown()
}

// Shutdown stops accepting new connections, drains in-flight requests up to
// 10 seconds, then closes the Redis client and the database pool. The
// sweeper and ticket worker stop through the context Run hands them.
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.log.Info("shutting down: draining in-flight requests")
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("http server shutdown did not complete cleanly")
	}

	if err := a.rdb.Close(); err != nil {
		a.log.WithError(err).Warn("redis client close failed")
	}
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("database close failed")
	}
	a.log.Info("shutdown complete")
	return nil
}
