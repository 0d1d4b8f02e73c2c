package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/core/ports"
	"github.com/trailsafe/kumawatch/internal/gpx"
	"github.com/trailsafe/kumawatch/internal/pkg/geospatial"
)

// DetectionOptions tunes a DetectionService.
type DetectionOptions struct {
	DefaultRadiusMeters float64
	MaxRadiusMeters     float64
	DownsampleCap       int
	DegreeModel         string
	Workers             int
	SightingsTTLSeconds int
}

// DetectionRequest is one detection run: a GPX upload plus a radius. ClientKey
// identifies the uploader; a new request with the same key supersedes and
// cancels a still-running one.
type DetectionRequest struct {
	TrackData    []byte
	RadiusMeters float64
	ClientKey    string
}

// DetectionService runs the route-proximity pipeline: parse, down-sample,
// buffer, pre-filter, classify, aggregate. Runs share no mutable state; the
// service only tracks in-flight cancel functions for supersession.
type DetectionService struct {
	sightings ports.SightingRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
	opts      DetectionOptions
	conv      geospatial.DegreeConverter

	mu     sync.Mutex
	active map[string]inflight
}

type inflight struct {
	runID  string
	cancel context.CancelCauseFunc
}

// NewDetectionService creates a DetectionService. An invalid degree model in
// opts is reported here, not at run time.
func NewDetectionService(
	sightings ports.SightingRepository,
	cache ports.CacheService,
	publisher ports.EventPublisher,
	opts DetectionOptions,
) (*DetectionService, error) {
	conv, err := geospatial.ConverterFor(opts.DegreeModel)
	if err != nil {
		return nil, err
	}
	if opts.DefaultRadiusMeters <= 0 {
		opts.DefaultRadiusMeters = 1000
	}
	if opts.MaxRadiusMeters <= 0 {
		opts.MaxRadiusMeters = 10000
	}
	if opts.DownsampleCap <= 0 {
		opts.DownsampleCap = geospatial.DownsampleCap
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &DetectionService{
		sightings: sightings,
		cache:     cache,
		publisher: publisher,
		opts:      opts,
		conv:      conv,
		active:    make(map[string]inflight),
	}, nil
}

// Run executes one detection run. Parse and geometry failures abort the whole
// run; nothing is retried, the inputs are deterministic.
func (s *DetectionService) Run(ctx context.Context, req DetectionRequest) (*domain.DetectionReport, error) {
	radius := req.RadiusMeters
	if radius == 0 {
		radius = s.opts.DefaultRadiusMeters
	}
	if radius <= 0 || radius > s.opts.MaxRadiusMeters {
		return nil, &domain.GeometryError{
			Err: fmt.Errorf("radius must be in (0, %v] meters, got %v", s.opts.MaxRadiusMeters, radius),
		}
	}

	runID := uuid.NewString()
	ctx, finish := s.begin(ctx, req.ClientKey, runID)
	defer finish()

	track, err := gpx.Parse(req.TrackData)
	if err != nil {
		return nil, err
	}
	if track.Len() < 2 {
		return nil, domain.ErrInsufficientPoints
	}

	display := geospatial.Downsample(track.Points, s.opts.DownsampleCap)
	corridor, err := geospatial.BuildCorridor(display, radius, s.conv)
	if err != nil {
		return nil, err
	}

	collection, err := s.loadSightings(ctx)
	if err != nil {
		return nil, runError(ctx, fmt.Errorf("load sightings: %w", err))
	}

	candidates := geospatial.FilterCandidates(corridor.Bounds(), collection)
	hazards, err := geospatial.Classify(ctx, corridor, candidates, s.opts.Workers)
	if err != nil {
		return nil, runError(ctx, err)
	}
	sortHazards(hazards)

	corridorJSON, err := json.Marshal(corridor.DisplayFeature())
	if err != nil {
		return nil, &domain.GeometryError{Err: err}
	}

	report := &domain.DetectionReport{
		RunID:          runID,
		GeneratedAt:    time.Now().UTC(),
		RadiusMeters:   radius,
		TrackName:      track.Name,
		TrackPoints:    track.Len(),
		GeometryPoints: len(display),
		TrackKm:        geospatial.TrackLengthKm(track.Points),
		Sightings:      len(collection),
		Candidates:     len(candidates),
		Hazards:        hazards,
		SourceCounts:   countBySource(hazards),
		Bounds:         corridor.Bounds(),
		Corridor:       corridorJSON,
	}

	if s.publisher != nil {
		_ = s.publisher.PublishDetection(ctx, report)
	}
	return report, nil
}

// begin registers the run for supersession and cancels any in-flight run
// with the same client key, recording domain.ErrSuperseded as the cause so
// the displaced run can tell replacement apart from its caller going away.
// The returned finish must be deferred.
func (s *DetectionService) begin(ctx context.Context, key, runID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if key == "" {
		return ctx, func() { cancel(nil) }
	}

	s.mu.Lock()
	if prev, ok := s.active[key]; ok {
		prev.cancel(domain.ErrSuperseded)
	}
	s.active[key] = inflight{runID: runID, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.active[key]; ok && cur.runID == runID {
			delete(s.active, key)
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

// runError maps a cancellation caused by supersession to the sentinel; any
// other failure passes through unchanged.
func runError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && errors.Is(context.Cause(ctx), domain.ErrSuperseded) {
		return domain.ErrSuperseded
	}
	return err
}

// loadSightings pulls the full collection through the TTL cache. Data
// acquisition itself happens in the fetcher; the core only ever sees cleaned
// records.
func (s *DetectionService) loadSightings(ctx context.Context) ([]domain.Sighting, error) {
	const cacheKey = "sightings:all"

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var collection []domain.Sighting
			if err := json.Unmarshal(data, &collection); err == nil {
				return collection, nil
			}
		}
	}

	collection, err := s.sightings.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ttl := s.opts.SightingsTTLSeconds
		if ttl <= 0 {
			ttl = 300
		}
		if data, err := json.Marshal(collection); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, ttl)
		}
	}
	return collection, nil
}

// sortHazards orders flagged sightings by observed-at descending. Records
// without a timestamp sort after all timestamped records; the sort is stable,
// so equal keys keep classification order and reruns on identical input
// produce identical output.
func sortHazards(hazards []domain.RouteHazard) {
	sort.SliceStable(hazards, func(i, j int) bool {
		ti, tj := hazards[i].Sighting.ObservedAt, hazards[j].Sighting.ObservedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}

func countBySource(hazards []domain.RouteHazard) map[string]int {
	if len(hazards) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, h := range hazards {
		counts[h.Sighting.Source]++
	}
	return counts
}
