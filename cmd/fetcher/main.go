package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/trailsafe/kumawatch/internal/adapters/nats"
	"github.com/trailsafe/kumawatch/internal/adapters/postgres"
	"github.com/trailsafe/kumawatch/internal/adapters/valkey"
	"github.com/trailsafe/kumawatch/internal/pkg/config"
	"github.com/trailsafe/kumawatch/internal/pkg/logging"
	"github.com/trailsafe/kumawatch/internal/pkg/metrics"
	"github.com/trailsafe/kumawatch/internal/sources"
)

func main() {
	cfg, err := config.Load("kumawatch-fetcher")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("kumawatch-fetcher", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, stale cache entries will expire on TTL", "error", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, events will not be published", "error", err)
		publisher = nil
	} else {
		defer publisher.Close()
	}

	feeds := buildSources(cfg.Sources)
	if len(feeds) == 0 {
		log.Fatal("no sources configured")
	}

	repo := postgres.NewSightingRepo(db)
	interval := time.Duration(cfg.Sources.PollIntervalSeconds) * time.Second
	slog.Info("fetcher starting", "sources", len(feeds), "interval", interval.String())

	// One immediate cycle, then tick.
	pollAll(ctx, cfg, feeds, repo, cache, publisher)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			pollAll(ctx, cfg, feeds, repo, cache, publisher)
		case sig := <-quit:
			slog.Info("shutdown signal received", "signal", sig.String())
			cancel()
			return
		}
	}
}

func buildSources(cfg config.SourcesConfig) []sources.Source {
	var feeds []sources.Source
	if cfg.Kumadas.Enabled {
		feeds = append(feeds, sources.NewKumadas(sources.KumadasConfig{
			URL:              cfg.Kumadas.URL,
			AppID:            cfg.Kumadas.AppID,
			APIKey:           cfg.Kumadas.APIKey,
			CenterLat:        cfg.Kumadas.CenterLat,
			CenterLon:        cfg.Kumadas.CenterLon,
			RadiusKm:         cfg.Kumadas.RadiusKm,
			InfoTypeIDs:      cfg.Kumadas.InfoTypeIDs,
			AnimalSpeciesIDs: cfg.Kumadas.AnimalSpeciesIDs,
			WindowDays:       cfg.Kumadas.WindowDays,
		}))
	}
	for _, feed := range cfg.OpenData {
		feeds = append(feeds, sources.NewOpenData(feed.Name, feed.URL))
	}
	return feeds
}

func pollAll(
	ctx context.Context,
	cfg *config.Config,
	feeds []sources.Source,
	repo *postgres.SightingRepo,
	cache *valkey.Cache,
	publisher *natsadapter.Publisher,
) {
	changed := false
	for _, src := range feeds {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		records, err := src.Fetch(ctx)
		metrics.SourcePollDuration.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SourcePollErrors.WithLabelValues(src.Name()).Inc()
			slog.Error("source poll failed", "source", src.Name(), "error", err)
			continue
		}
		if cfg.Sources.Dedupe {
			records = sources.Dedupe(records)
		}
		if len(records) == 0 {
			slog.Info("source poll empty", "source", src.Name())
			continue
		}

		n, err := repo.UpsertBatch(ctx, records)
		if err != nil {
			slog.Error("upsert failed", "source", src.Name(), "error", err)
			continue
		}
		metrics.SightingsIngested.WithLabelValues(src.Name()).Add(float64(n))
		changed = true
		slog.Info("source poll complete", "source", src.Name(), "records", n)

		if publisher != nil {
			if err := publisher.PublishSightingBatch(ctx, src.Name(), n); err != nil {
				slog.Warn("publish batch event failed", "source", src.Name(), "error", err)
			}
		}
	}

	// Detection runs read through these keys; drop them so the next run sees
	// fresh data.
	if changed && cache != nil {
		_ = cache.Delete(ctx, "sightings:all")
		_ = cache.Delete(ctx, "sightings:sources")
	}
}
