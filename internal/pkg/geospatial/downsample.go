package geospatial

import "github.com/trailsafe/kumawatch/internal/core/domain"

// DownsampleCap is the default maximum number of points the geometry track
// may carry. The full-resolution track is kept for reporting.
const DownsampleCap = 500

// Downsample selects every Nth point where N = ceil(len/limit), preserving
// the first and last point. The result never exceeds limit points. Tracks
// already at or under the limit are returned as-is (same backing array,
// still treated as read-only).
func Downsample(points []domain.GeoCoordinate, limit int) []domain.GeoCoordinate {
	if limit <= 0 {
		limit = DownsampleCap
	}
	n := len(points)
	if n <= limit {
		return points
	}

	step := (n + limit - 1) / limit
	out := make([]domain.GeoCoordinate, 0, limit)
	for i := 0; i < n; i += step {
		out = append(out, points[i])
	}
	// Keep the route's true endpoint without growing past the limit.
	if out[len(out)-1] != points[n-1] {
		out[len(out)-1] = points[n-1]
	}
	return out
}
