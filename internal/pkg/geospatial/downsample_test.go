package geospatial_test

import (
	"math"
	"testing"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/pkg/geospatial"
)

func syntheticTrack(n int) []domain.GeoCoordinate {
	pts := make([]domain.GeoCoordinate, n)
	for i := range pts {
		pts[i] = domain.GeoCoordinate{Lat: 35.0 + float64(i)*0.0001, Lon: 138.0}
	}
	return pts
}

func TestDownsample_UnderCapUntouched(t *testing.T) {
	pts := syntheticTrack(100)
	out := geospatial.Downsample(pts, 500)
	if len(out) != 100 {
		t.Fatalf("expected 100 points untouched, got %d", len(out))
	}
}

func TestDownsample_LargeTrack(t *testing.T) {
	pts := syntheticTrack(2000)
	out := geospatial.Downsample(pts, 500)

	if len(out) > 500 {
		t.Fatalf("cap exceeded: %d points", len(out))
	}
	if out[0] != pts[0] {
		t.Error("first point not preserved")
	}
	if out[len(out)-1] != pts[len(pts)-1] {
		t.Error("last point not preserved")
	}
}

func TestDownsample_CapBoundaries(t *testing.T) {
	for _, n := range []int{501, 999, 1000, 1001, 4999, 50000} {
		pts := syntheticTrack(n)
		out := geospatial.Downsample(pts, 500)
		if len(out) > 500 {
			t.Errorf("n=%d: cap exceeded with %d points", n, len(out))
		}
		if len(out) < 2 {
			t.Errorf("n=%d: unusable result, %d points", n, len(out))
		}
		if out[len(out)-1] != pts[n-1] {
			t.Errorf("n=%d: endpoint lost", n)
		}
	}
}

// The corridor built from a down-sampled track must still cover the full
// buffer width everywhere along the original route: the lateral deviation the
// omitted points introduce stays far below any sane radius, so every original
// point, and anything on the original line, classifies inside.
func TestDownsample_CorridorCoversOriginalTrack(t *testing.T) {
	const radius = 500.0

	// A gently winding route: ~30 m of lateral wiggle on a northbound line.
	full := make([]domain.GeoCoordinate, 2000)
	for i := range full {
		full[i] = domain.GeoCoordinate{
			Lat: 35.0 + float64(i)*0.0001,
			Lon: 138.0 + 0.0003*math.Sin(float64(i)/50),
		}
	}

	display := geospatial.Downsample(full, 100)
	if len(display) > 100 {
		t.Fatalf("limit exceeded: %d points", len(display))
	}

	corridor, err := geospatial.BuildCorridor(display, radius, geospatial.FixedJapan)
	if err != nil {
		t.Fatalf("build corridor: %v", err)
	}

	for i, p := range full {
		if !corridor.Contains(p.Planar()) {
			t.Fatalf("original point %d left the down-sampled corridor", i)
		}
	}

	// A sighting on an omitted stretch of the original line must still flag.
	between := domain.GeoCoordinate{
		Lat: (full[10].Lat + full[11].Lat) / 2,
		Lon: (full[10].Lon + full[11].Lon) / 2,
	}
	if !corridor.Contains(between.Planar()) {
		t.Error("sighting on the original line escaped the corridor")
	}
}

func TestDownsample_PreservesOrder(t *testing.T) {
	pts := syntheticTrack(1234)
	out := geospatial.Downsample(pts, 500)
	for i := 1; i < len(out); i++ {
		if out[i].Lat <= out[i-1].Lat {
			t.Fatalf("order broken at index %d", i)
		}
	}
}
