package geospatial

import (
	"math"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
// Used for user-facing distances; corridor membership uses the configured
// degree model instead, so that the boundary semantics stay self-consistent.
func Haversine(a, b domain.GeoCoordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c * 1000 // meters
}

// TrackLengthKm sums the haversine distance along consecutive track points.
func TrackLengthKm(points []domain.GeoCoordinate) float64 {
	var m float64
	for i := 1; i < len(points); i++ {
		m += Haversine(points[i-1], points[i])
	}
	return m / 1000
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
