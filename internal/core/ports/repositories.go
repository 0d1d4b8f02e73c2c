package ports

import (
	"context"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// SightingRepository persists sighting records.
type SightingRepository interface {
	// UpsertBatch stores records keyed by their natural ID and returns the
	// number written.
	UpsertBatch(ctx context.Context, sightings []domain.Sighting) (int, error)
	// ListAll returns the full collection, the input of a detection run.
	ListAll(ctx context.Context) ([]domain.Sighting, error)
	// ListInBounds returns records inside the box, newest first, with the
	// total count before limit/offset. An empty source matches all sources.
	ListInBounds(ctx context.Context, bounds domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error)
	// CountBySource returns record counts per source tag.
	CountBySource(ctx context.Context) (map[string]int, error)
}
