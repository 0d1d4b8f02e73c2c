package main

import (
	"context"
	"testing"

	natsadapter "github.com/trailsafe/kumawatch/internal/adapters/nats"
	"github.com/trailsafe/kumawatch/internal/adapters/valkey"
	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/core/usecases"
)

// stubRepo is the minimal repository for wiring tests.
type stubRepo struct{}

func (stubRepo) UpsertBatch(ctx context.Context, s []domain.Sighting) (int, error) { return 0, nil }
func (stubRepo) ListAll(ctx context.Context) ([]domain.Sighting, error)            { return nil, nil }
func (stubRepo) ListInBounds(ctx context.Context, b domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error) {
	return nil, 0, nil
}
func (stubRepo) CountBySource(ctx context.Context) (map[string]int, error) { return nil, nil }

func TestAdapterLiftersReturnNilInterfaces(t *testing.T) {
	var cache *valkey.Cache
	var pub *natsadapter.Publisher

	if svc := cacheService(cache); svc != nil {
		t.Error("nil cache pointer must lift to a nil interface")
	}
	if svc := eventPublisher(pub); svc != nil {
		t.Error("nil publisher pointer must lift to a nil interface")
	}
	if cacheService(&valkey.Cache{}) == nil {
		t.Error("live cache must survive the lift")
	}
}

// A failed cache or broker connect degrades the API, it must not panic it.
func TestDetectionRunsWithAdaptersDown(t *testing.T) {
	var cache *valkey.Cache
	var pub *natsadapter.Publisher

	svc, err := usecases.NewDetectionService(stubRepo{}, cacheService(cache), eventPublisher(pub), usecases.DetectionOptions{
		DefaultRadiusMeters: 250,
		MaxRadiusMeters:     5000,
	})
	if err != nil {
		t.Fatalf("detection service: %v", err)
	}

	track := []byte(`<gpx version="1.1"><trk><trkseg>` +
		`<trkpt lat="35.000" lon="138.000"></trkpt>` +
		`<trkpt lat="35.010" lon="138.000"></trkpt>` +
		`</trkseg></trk></gpx>`)

	report, err := svc.Run(context.Background(), usecases.DetectionRequest{
		TrackData:    track,
		RadiusMeters: 500,
	})
	if err != nil {
		t.Fatalf("run without cache and broker: %v", err)
	}
	if len(report.Hazards) != 0 {
		t.Errorf("expected an all-clear, got %d hazards", len(report.Hazards))
	}

	sightings := usecases.NewSightingService(stubRepo{}, cacheService(cache))
	if _, err := sightings.SourceCounts(context.Background()); err != nil {
		t.Fatalf("source counts without cache: %v", err)
	}
}
