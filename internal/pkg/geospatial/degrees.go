package geospatial

import (
	"fmt"
	"math"
)

// DegreeConverter reports how many meters one decimal degree spans at the
// given latitude. The corridor builder takes it as a value so a caller who
// wants geodesic accuracy can substitute a proper projection without touching
// the rest of the pipeline.
type DegreeConverter func(lat float64) float64

// Degree model names accepted in configuration.
const (
	ModelFixed90k = "fixed90k"
	ModelCosLat   = "coslat"
)

// metersPerDegreeJapan is the flat-earth constant the corridor math was
// originally tuned with: 1 degree ≈ 90,000 m, a deliberate simplification
// valid near Japan's latitudes. Not a surveying-grade figure.
const metersPerDegreeJapan = 90000.0

// metersPerDegreeLat is the near-constant span of one degree of latitude.
const metersPerDegreeLat = 111320.0

// FixedJapan ignores latitude and returns the 90,000 m/degree constant.
func FixedJapan(_ float64) float64 {
	return metersPerDegreeJapan
}

// CosineAdjusted shrinks the span with latitude, matching the
// 111,320·cos(lat) variant. It conservatively returns the longitude span,
// which is the smaller of the two axes, so a radius converted with it is
// never under-sized in degrees.
func CosineAdjusted(lat float64) float64 {
	m := metersPerDegreeLat * math.Cos(toRad(lat))
	if m < 1 {
		// Degenerate near the poles; clamp rather than divide by zero.
		return 1
	}
	return m
}

// ConverterFor resolves a configured degree model name.
func ConverterFor(model string) (DegreeConverter, error) {
	switch model {
	case "", ModelFixed90k:
		return FixedJapan, nil
	case ModelCosLat:
		return CosineAdjusted, nil
	default:
		return nil, fmt.Errorf("unknown degree model %q", model)
	}
}
