// README: Entry point; loads config, wires stores and services by driver, serves HTTP and drains on shutdown.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"fixit/internal/config"
	httptransport "fixit/internal/http"
	"fixit/internal/infra"
	"fixit/internal/maps"
	"fixit/internal/modules/booking"
	"fixit/internal/modules/location"
	"fixit/internal/modules/matching"
	"fixit/internal/modules/notification"
	"fixit/internal/modules/wallet"
	"fixit/internal/modules/worker"
	"fixit/internal/mq"
	"fixit/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry)

	var app *firebase.App
	if cfg.Drivers.Auth == "firebase" || cfg.Drivers.Notify == "fcm" || cfg.Firebase.DatabaseURL != "" {
		app, err = infra.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	}

	var verifier infra.TokenVerifier
	if cfg.Drivers.Auth == "firebase" {
		verifier, err = infra.NewFirebaseVerifier(ctx, app)
		if err != nil {
			log.Fatalf("firebase auth: %v", err)
		}
	} else {
		log.Printf("auth: dev tokens enabled, do not expose this server")
		verifier = infra.NewDevVerifier()
	}

	var dbPool *pgxpool.Pool
	if cfg.Drivers.Store == "postgres" {
		dbPool, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
	}

	var redisClient *redis.Client
	if cfg.Drivers.Feed == "redis" {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
	}

	var publisher *mq.Publisher
	if cfg.Drivers.Notify == "amqp" || cfg.Drivers.Wallet == "amqp" {
		publisher, err = mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer publisher.Close()
	}

	var notifier notification.Dispatcher = notification.LogDispatcher{}
	switch cfg.Drivers.Notify {
	case "fcm":
		client, err := infra.NewMessaging(ctx, app)
		if err != nil {
			log.Fatalf("fcm: %v", err)
		}
		notifier = notification.NewFCMDispatcher(client)
	case "amqp":
		notifier = notification.NewAMQPDispatcher(publisher)
	}

	var ledger wallet.Ledger = wallet.LogLedger{}
	if cfg.Drivers.Wallet == "amqp" {
		ledger = wallet.NewEventLedger(publisher)
	}

	var geocoder booking.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocoder(cfg.Maps.APIKey, cfg.Maps.Language)
		if err != nil {
			log.Fatalf("maps: %v", err)
		}
		geocoder = g
	}

	// stores
	var (
		bookingStore  booking.Store        = booking.NewMemoryStore()
		workerStore   worker.Store         = worker.NewMemoryStore()
		locationStore location.Store       = location.NewMemoryStore()
		dispatchLog   matching.DispatchLog = matching.NewMemoryDispatchLog()
		feed          location.Feed        = location.NewHub(cfg.Tracking.StreamBuffer)
	)
	if dbPool != nil {
		bookingStore = booking.NewPostgresStore(dbPool)
		workerStore = worker.NewPostgresStore(dbPool)
		locationStore = location.NewPostgresStore(dbPool)
	}
	if redisClient != nil {
		indexed := worker.NewGeoIndexedStore(workerStore, redisClient)
		if err := indexed.Rebuild(ctx); err != nil {
			log.Printf("worker geo index rebuild failed: %v", err)
		}
		workerStore = indexed
		dispatchLog = matching.NewRedisDispatchLog(redisClient)
		feed = location.NewRedisFeed(redisClient, cfg.Tracking.StreamBuffer)
	}

	directory := worker.NewDirectory(workerStore)

	sinks := []location.Sink{location.NewWorkerSnapshotSink(directory)}
	if cfg.Firebase.DatabaseURL != "" {
		rtdb, err := infra.NewRealtimeDB(ctx, app)
		if err != nil {
			log.Fatalf("firebase rtdb: %v", err)
		}
		sinks = append(sinks, location.NewRTDBMirror(rtdb))
	}
	devices := location.NewDeviceRegistry()
	tracker := location.NewTracker(locationStore, feed, devices, cfg.Tracking, sinks...)

	bookingSvc := booking.NewService(booking.Deps{
		Store:    bookingStore,
		Geocoder: geocoder,
		Notifier: notifier,
		Workers:  directory,
		Ledger:   ledger,
		Tracking: tracker,
		Config:   cfg.Booking,
	})
	matchingSvc := matching.NewService(directory, notifier, dispatchLog, cfg.Matching)
	stream := location.NewStream(locationStore, feed, bookingSvc, cfg.Tracking)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Bookings: bookingSvc,
		Matching: matchingSvc,
		Workers:  directory,
		Tracker:  tracker,
		Devices:  devices,
		Stream:   stream,
		Verifier: verifier,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}
	go func() {
		log.Printf("fixit-api listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stream.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	tracker.Close(shutdownCtx)
	bookingSvc.Wait()
	matchingSvc.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
