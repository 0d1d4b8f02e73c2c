package geospatial

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// Classify runs the exact membership test for every candidate and returns
// the flagged subset in candidate order. Candidates are independent, so the
// loop fans out over workers; results are collected by index, which keeps
// the output deterministic regardless of scheduling. A cancelled context
// aborts the run and returns ctx.Err().
//
// For each flagged sighting the nearest point on the track line and the
// separation in meters (via the corridor's own degree conversion) are filled
// in for the connecting-line visualization.
func Classify(ctx context.Context, c *Corridor, candidates []domain.Sighting, workers int) ([]domain.RouteHazard, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	results := make([]*domain.RouteHazard, len(candidates))
	var next int64 = -1

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(candidates) {
					return
				}
				select {
				case <-ctx.Done():
					return
				default:
				}
				results[i] = classifyOne(c, candidates[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hazards := make([]domain.RouteHazard, 0, len(candidates))
	for _, h := range results {
		if h != nil {
			hazards = append(hazards, *h)
		}
	}
	return hazards, nil
}

func classifyOne(c *Corridor, s domain.Sighting) *domain.RouteHazard {
	// The second and last geo→planar crossing in the pipeline.
	pt := s.Location.Planar()
	if !c.Contains(pt) {
		return nil
	}

	nearest, distDeg := c.Nearest(pt)
	return &domain.RouteHazard{
		Sighting:       s,
		NearestPoint:   domain.FromPlanar(nearest),
		DistanceMeters: distDeg * c.MetersPerDegree(),
	}
}
