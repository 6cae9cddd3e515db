package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/safar-hail/service-maps/internal/application"
	"github.com/safar-hail/service-maps/internal/bridge"
	"github.com/safar-hail/service-maps/internal/config"
	"github.com/safar-hail/service-maps/internal/domain/trip"
	"github.com/safar-hail/service-maps/internal/events"
	"github.com/safar-hail/service-maps/internal/geocode"
	"github.com/safar-hail/service-maps/internal/handler"
	"github.com/safar-hail/service-maps/internal/health"
	"github.com/safar-hail/service-maps/internal/logger"
	"github.com/safar-hail/service-maps/internal/middleware"
	"github.com/safar-hail/service-maps/internal/repository"
	"github.com/safar-hail/service-maps/internal/surface"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-maps")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-maps",
		zap.String("port", cfg.Port),
		zap.String("surface_mode", cfg.Surface.Mode),
	)

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.TripModel{}); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	}

	// Initialize Kafka producer
	kafkaProducer := events.NewProducer(cfg.Kafka.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()

	// Initialize repository, fare strategy and geocoding resolver
	tripRepo := repository.NewGormTripRepository(db)
	fareStrategy := trip.NewStandardFareStrategy()
	resolver := geocode.NewResolver(cfg.Geocode, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire the map surface. In embedded mode an in-process runtime plays
	// the surface role over a loopback transport; in websocket mode a
	// remote surface connects on /ws/surface.
	var (
		mapBridge      *bridge.Bridge
		surfaceHandler *handler.SurfaceHandler
	)
	switch cfg.Surface.Mode {
	case "embedded":
		hostT, surfaceT := bridge.NewLoopback(16)
		mapBridge = bridge.New(hostT, log)

		display := surface.NewDisplayState()
		runtime := surface.NewRuntime(surfaceT, display, surface.Options{
			AnimateInterval: cfg.Surface.AnimateInterval,
			FitBoundsPad:    cfg.Surface.FitBoundsPad,
		}, log)
		go runtime.Run(ctx)

		surfaceHandler = handler.NewSurfaceHandler(nil, display, log)

	case "websocket":
		attach := bridge.NewSwitch()
		mapBridge = bridge.New(attach, log)
		surfaceHandler = handler.NewSurfaceHandler(attach, nil, log)
	}

	// Initialize application service and start the bridge pump
	tripService := application.NewTripService(
		tripRepo,
		resolver,
		fareStrategy,
		mapBridge,
		kafkaProducer,
		log,
	)
	tripService.RegisterBridgeHandlers()
	go mapBridge.Run(ctx)

	// Initialize and start dispatch event consumer in a goroutine
	groupID := cfg.Kafka.GroupPrefix + "maps-service"
	dispatchConsumer := events.NewDispatchEventConsumer(
		cfg.Kafka.Brokers,
		groupID,
		tripService,
		log,
	)
	defer func() { _ = dispatchConsumer.Close() }()

	go func() {
		log.Info("starting dispatch event consumer")
		if err := dispatchConsumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error("dispatch event consumer error", zap.Error(err))
		}
	}()

	// Initialize HTTP handlers
	tripHandler := handler.NewTripHandler(tripService)
	adminHandler := handler.NewAdminTripHandler(tripService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	// Register health check routes
	healthHandler := health.NewHandler(db, "service-maps")
	healthHandler.RegisterRoutes(router)

	// Register routes
	tripHandler.RegisterRoutes(&router.RouterGroup)
	adminHandler.RegisterRoutes(&router.RouterGroup)
	surfaceHandler.RegisterRoutes(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-maps...")

	// Stop the bridge, surface runtime and consumer
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-maps stopped")
}
