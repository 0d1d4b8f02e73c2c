package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/core/usecases"
	"github.com/trailsafe/kumawatch/internal/sources"
)

// detect runs the full detection pipeline offline: a GPX track plus a local
// sighting CSV, no database or broker. Useful for trying a route before a
// trip and for debugging classification.
func main() {
	var (
		gpxPath   = flag.String("gpx", "", "path to GPX track (required)")
		csvPath   = flag.String("sightings", "", "path to sighting CSV (required)")
		radius    = flag.Float64("radius", 1000, "corridor half-width in meters")
		model     = flag.String("degree-model", "fixed90k", "meters-per-degree model: fixed90k or coslat")
		full      = flag.Bool("full", false, "print the full report JSON instead of a summary")
		dedupe    = flag.Bool("dedupe", false, "collapse duplicate records before classification")
		sourceTag = flag.String("source", "local", "source tag for the CSV records")
	)
	flag.Parse()

	if *gpxPath == "" || *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	trackData, err := os.ReadFile(*gpxPath)
	if err != nil {
		log.Fatalf("read gpx: %v", err)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("open sightings: %v", err)
	}
	records, err := sources.DecodeCSV(f, *sourceTag)
	_ = f.Close()
	if err != nil {
		log.Fatalf("decode sightings: %v", err)
	}
	if *dedupe {
		records = sources.Dedupe(records)
	}

	svc, err := usecases.NewDetectionService(memRepo(records), nil, nil, usecases.DetectionOptions{
		DegreeModel: *model,
		Workers:     runtime.NumCPU(),
	})
	if err != nil {
		log.Fatalf("detection service: %v", err)
	}

	report, err := svc.Run(context.Background(), usecases.DetectionRequest{
		TrackData:    trackData,
		RadiusMeters: *radius,
	})
	if err != nil {
		log.Fatalf("detect: %v", err)
	}

	if *full {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("encode report: %v", err)
		}
		return
	}

	printSummary(report)
}

func printSummary(r *domain.DetectionReport) {
	fmt.Printf("track: %s (%d points, %.1f km)\n", r.TrackName, r.TrackPoints, r.TrackKm)
	fmt.Printf("corridor: %.0f m, sightings %d, candidates %d\n", r.RadiusMeters, r.Sightings, r.Candidates)
	fmt.Printf("hazards: %d\n", len(r.Hazards))
	for _, h := range r.Hazards {
		when := "unknown time"
		if h.Sighting.ObservedAt != nil {
			when = h.Sighting.ObservedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("  %7.0f m  %s  %s  %s\n",
			h.DistanceMeters, when, h.Sighting.Place, h.Sighting.Description)
	}
}

// memRepo serves a fixed record set through the repository port.
type memRepo []domain.Sighting

func (m memRepo) UpsertBatch(ctx context.Context, sightings []domain.Sighting) (int, error) {
	return 0, fmt.Errorf("read-only repository")
}

func (m memRepo) ListAll(ctx context.Context) ([]domain.Sighting, error) {
	return m, nil
}

func (m memRepo) ListInBounds(ctx context.Context, bounds domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error) {
	var matched []domain.Sighting
	for _, s := range m {
		if bounds.Contains(s.Location) && (source == "" || s.Source == source) {
			matched = append(matched, s)
		}
	}
	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m memRepo) CountBySource(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, s := range m {
		counts[s.Source]++
	}
	return counts, nil
}
