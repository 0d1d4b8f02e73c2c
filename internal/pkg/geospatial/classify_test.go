package geospatial_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/pkg/geospatial"
)

func TestClassify_SplitsInsideFromOutside(t *testing.T) {
	c, err := geospatial.BuildCorridor(straightTrack(), 500, geospatial.FixedJapan)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	candidates := []domain.Sighting{
		{ID: "inside", Location: domain.GeoCoordinate{Lat: 35.005, Lon: 138.001}},
		{ID: "outside", Location: domain.GeoCoordinate{Lat: 35.005, Lon: 138.020}},
		{ID: "on-line", Location: domain.GeoCoordinate{Lat: 35.003, Lon: 138.000}},
	}

	hazards, err := geospatial.Classify(context.Background(), c, candidates, 2)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(hazards) != 2 {
		t.Fatalf("expected 2 hazards, got %d", len(hazards))
	}
	if hazards[0].Sighting.ID != "inside" || hazards[1].Sighting.ID != "on-line" {
		t.Errorf("candidate order lost: %s, %s", hazards[0].Sighting.ID, hazards[1].Sighting.ID)
	}

	// 0.001 deg at 90,000 m/deg is 90 m.
	if d := hazards[0].DistanceMeters; math.Abs(d-90) > 0.01 {
		t.Errorf("expected 90 m separation, got %v", d)
	}
	if d := hazards[1].DistanceMeters; d > 1e-6 {
		t.Errorf("on-line sighting should have zero separation, got %v", d)
	}
}

func TestClassify_DeterministicAcrossWorkerCounts(t *testing.T) {
	c, err := geospatial.BuildCorridor(straightTrack(), 800, geospatial.FixedJapan)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var candidates []domain.Sighting
	for i := 0; i < 200; i++ {
		candidates = append(candidates, domain.Sighting{
			ID:       fmt.Sprintf("s%03d", i),
			Location: domain.GeoCoordinate{Lat: 35.0 + float64(i)*0.00004, Lon: 138.0 + float64(i%7)*0.002},
		})
	}

	serial, err := geospatial.Classify(context.Background(), c, candidates, 1)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	parallel, err := geospatial.Classify(context.Background(), c, candidates, 8)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}

	if !reflect.DeepEqual(serial, parallel) {
		t.Fatal("worker count changed the result")
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c, _ := geospatial.BuildCorridor(straightTrack(), 500, geospatial.FixedJapan)
	candidates := []domain.Sighting{
		{ID: "a", Location: domain.GeoCoordinate{Lat: 35.004, Lon: 138.002}},
		{ID: "b", Location: domain.GeoCoordinate{Lat: 35.006, Lon: 138.100}},
	}

	first, err := geospatial.Classify(context.Background(), c, candidates, 4)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := geospatial.Classify(context.Background(), c, candidates, 4)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same input produced different reports")
	}
}

func TestClassify_CancelledContext(t *testing.T) {
	c, _ := geospatial.BuildCorridor(straightTrack(), 500, geospatial.FixedJapan)
	candidates := make([]domain.Sighting, 1000)
	for i := range candidates {
		candidates[i] = domain.Sighting{Location: domain.GeoCoordinate{Lat: 35.005, Lon: 138.0}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := geospatial.Classify(ctx, c, candidates, 4)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassify_NoCandidates(t *testing.T) {
	c, _ := geospatial.BuildCorridor(straightTrack(), 500, geospatial.FixedJapan)
	hazards, err := geospatial.Classify(context.Background(), c, nil, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hazards != nil {
		t.Errorf("expected nil hazards, got %v", hazards)
	}
}
