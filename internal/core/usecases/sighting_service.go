package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/core/ports"
)

// SightingService handles sighting queries for the API surface.
type SightingService struct {
	sightings ports.SightingRepository
	cache     ports.CacheService
}

// NewSightingService creates a new SightingService.
func NewSightingService(sightings ports.SightingRepository, cache ports.CacheService) *SightingService {
	return &SightingService{sightings: sightings, cache: cache}
}

// ListInBounds returns sightings inside the box, newest first, plus the total
// before pagination.
func (s *SightingService) ListInBounds(ctx context.Context, bounds domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error) {
	if bounds.MinLat > bounds.MaxLat || bounds.MinLon > bounds.MaxLon {
		return nil, 0, fmt.Errorf("bounds are inverted")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.sightings.ListInBounds(ctx, bounds, source, limit, offset)
}

// SourceCounts returns record counts per source tag, cached briefly since the
// fetcher only writes on its poll interval.
func (s *SightingService) SourceCounts(ctx context.Context) (map[string]int, error) {
	const cacheKey = "sightings:sources"

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var counts map[string]int
			if err := json.Unmarshal(data, &counts); err == nil {
				return counts, nil
			}
		}
	}

	counts, err := s.sightings.CountBySource(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(counts); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 60)
		}
	}
	return counts, nil
}
