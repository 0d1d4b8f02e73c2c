package geospatial

import "github.com/trailsafe/kumawatch/internal/core/domain"

// FilterCandidates runs the cheap bounding-box pre-filter over the full
// sighting collection. Every record the exact containment test would accept
// survives this filter: the box is already padded by the full buffer radius,
// and the edge comparison is inclusive.
func FilterCandidates(bounds domain.Bounds, sightings []domain.Sighting) []domain.Sighting {
	if len(sightings) == 0 {
		return nil
	}
	candidates := make([]domain.Sighting, 0, len(sightings))
	for _, s := range sightings {
		if bounds.Contains(s.Location) {
			candidates = append(candidates, s)
		}
	}
	return candidates
}
