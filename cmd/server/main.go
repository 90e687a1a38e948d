package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openride/bus-seat-reservation/internal/booking"
	"github.com/openride/bus-seat-reservation/internal/broadcast"
	"github.com/openride/bus-seat-reservation/internal/config"
	"github.com/openride/bus-seat-reservation/internal/database"
	"github.com/openride/bus-seat-reservation/internal/handler"
	"github.com/openride/bus-seat-reservation/internal/lock"
	"github.com/openride/bus-seat-reservation/internal/queue"
	"github.com/openride/bus-seat-reservation/internal/repository"
	"github.com/openride/bus-seat-reservation/internal/router"
	"github.com/openride/bus-seat-reservation/internal/seatmap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Env == "dev" {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and event mirroring disabled")
	}

	seatRepo := repository.NewSeatRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	refundRepo := repository.NewRefundRepo(db)
	tripRepo := repository.NewTripRepo(db)

	hub := broadcast.New(rdb, log)
	sessions := lock.NewSessionTracker()
	mgr := lock.NewManager(seatRepo, sessions, hub, cfg.HoldDuration, log)

	publisher := queue.NewPublisher(cfg.AMQPURL, log)
	svc := booking.NewService(mgr, seatRepo, bookingRepo, refundRepo, tripRepo, publisher, cfg.BookingHold, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	router.Register(e, router.Handlers{
		Seats:    handler.NewSeatHandler(mgr, seatRepo),
		Stream:   handler.NewStreamHandler(hub, mgr, log),
		Bookings: handler.NewBookingHandler(svc),
		Seatmap:  handler.NewSeatmapHandler(seatmap.NewGenerator(seatRepo), tripRepo),
	}, cfg.JWTSecret, rdb, router.RateLimitConfig{
		Requests: cfg.RateLimitReqs,
		Window:   cfg.RateLimitWindow,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return lock.NewReclaimer(mgr, cfg.ReclaimEvery, log).Run(ctx)
	})
	g.Go(func() error {
		return booking.NewSweeper(svc, cfg.SweepEvery, log).Run(ctx)
	})
	g.Go(func() error {
		return queue.NewPaymentConsumer(cfg.AMQPURL, paymentAdapter{svc}, log).Run(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("shutdown complete")
}

// paymentAdapter narrows the booking service to the consumer's interface.
type paymentAdapter struct{ svc *booking.Service }

func (a paymentAdapter) ProcessPayment(ctx context.Context, bookingID uint64) error {
	_, err := a.svc.ProcessPayment(ctx, bookingID)
	return err
}
