package domain

import "github.com/paulmach/orb"

// GeoCoordinate is a geographic coordinate (WGS 84) in (latitude, longitude)
// order. This is the order used by track storage, sighting records, and
// everything handed to the rendering layer.
//
// Geometry code works on orb.Point, which is (x=longitude, y=latitude). The
// two types are deliberately not interchangeable; the only way to cross from
// one to the other is Planar and FromPlanar.
type GeoCoordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Planar converts to the geometry representation. Call sites should be rare:
// corridor construction and containment testing, nothing else.
func (g GeoCoordinate) Planar() orb.Point {
	return orb.Point{g.Lon, g.Lat}
}

// Valid reports whether the coordinate is inside the WGS 84 domain.
func (g GeoCoordinate) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// FromPlanar converts a geometry point back to geographic order, for results
// that flow toward rendering.
func FromPlanar(p orb.Point) GeoCoordinate {
	return GeoCoordinate{Lat: p.Y(), Lon: p.X()}
}

// Bounds is a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether g falls inside the box, inclusive on all four edges.
func (b Bounds) Contains(g GeoCoordinate) bool {
	return g.Lat >= b.MinLat && g.Lat <= b.MaxLat &&
		g.Lon >= b.MinLon && g.Lon <= b.MaxLon
}

// Pad grows the box by deg on every side. Padding never shrinks the box.
func (b Bounds) Pad(deg float64) Bounds {
	if deg < 0 {
		deg = 0
	}
	return Bounds{
		MinLat: b.MinLat - deg,
		MinLon: b.MinLon - deg,
		MaxLat: b.MaxLat + deg,
		MaxLon: b.MaxLon + deg,
	}
}

// BoundsFromOrb converts an orb.Bound (x=lon, y=lat) to geographic order.
func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{
		MinLat: b.Min.Y(),
		MinLon: b.Min.X(),
		MaxLat: b.Max.Y(),
		MaxLon: b.Max.X(),
	}
}
