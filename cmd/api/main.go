package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/trailsafe/kumawatch/internal/adapters/http"
	natsadapter "github.com/trailsafe/kumawatch/internal/adapters/nats"
	"github.com/trailsafe/kumawatch/internal/adapters/postgres"
	"github.com/trailsafe/kumawatch/internal/adapters/valkey"
	"github.com/trailsafe/kumawatch/internal/core/ports"
	"github.com/trailsafe/kumawatch/internal/core/usecases"
	"github.com/trailsafe/kumawatch/internal/pkg/config"
	"github.com/trailsafe/kumawatch/internal/pkg/logging"
	"github.com/trailsafe/kumawatch/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("kumawatch-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("kumawatch-api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
	}

	// NATS
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer nc.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Repos
	sightingRepo := postgres.NewSightingRepo(db)

	// Use cases. The services see the ports, and an unavailable adapter must
	// reach them as a true nil interface, not a nil concrete pointer.
	sightingSvc := usecases.NewSightingService(sightingRepo, cacheService(cache))
	detectionSvc, err := usecases.NewDetectionService(sightingRepo, cacheService(cache), eventPublisher(nc), usecases.DetectionOptions{
		DefaultRadiusMeters: cfg.Detect.DefaultRadiusMeters,
		MaxRadiusMeters:     cfg.Detect.MaxRadiusMeters,
		DownsampleCap:       cfg.Detect.DownsampleCap,
		DegreeModel:         cfg.Detect.DegreeModel,
		Workers:             cfg.Detect.Workers,
		SightingsTTLSeconds: cfg.Detect.SightingsTTLSeconds,
	})
	if err != nil {
		log.Fatalf("detection service: %v", err)
	}

	deps := &http.Dependencies{
		Sightings:  sightingSvc,
		Detections: detectionSvc,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    16 * 1024 * 1024, // GPX uploads can run large
		AppName:      "Kumawatch API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, X-Client-Key",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// cacheService lifts the concrete cache into its port. A nil pointer becomes
// a nil interface, so the services' nil checks see the cache as absent
// instead of calling methods on a nil receiver.
func cacheService(c *valkey.Cache) ports.CacheService {
	if c == nil {
		return nil
	}
	return c
}

// eventPublisher does the same for the NATS publisher.
func eventPublisher(p *natsadapter.Publisher) ports.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
