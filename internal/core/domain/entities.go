package domain

import (
	"encoding/json"
	"time"
)

// Track is an ordered sequence of GPS points describing a planned route.
// Points are in traversal order and read-only once parsed; down-sampling
// produces a derived sequence and never mutates the original.
type Track struct {
	Name   string          `json:"name,omitempty"`
	Points []GeoCoordinate `json:"points"`
}

// Len returns the full-resolution point count, the number reported to the
// user regardless of any down-sampling applied for geometry.
func (t *Track) Len() int {
	return len(t.Points)
}

// Sighting is one historical bear-observation record. ObservedAt is nil when
// the source carried no parseable timestamp; that is a valid state, not an
// error. Location is always present and numeric; records failing that are
// dropped during ingestion and never reach the detection core.
type Sighting struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	Location    GeoCoordinate `json:"location"`
	ObservedAt  *time.Time    `json:"observed_at,omitempty"`
	Description string        `json:"description,omitempty"`
	Place       string        `json:"place,omitempty"`
}

// RouteHazard is a sighting classified inside the safety corridor, together
// with the nearest point on the planned route and the separation used for the
// connecting-line visualization.
type RouteHazard struct {
	Sighting       Sighting      `json:"sighting"`
	NearestPoint   GeoCoordinate `json:"nearest_point"`
	DistanceMeters float64       `json:"distance_m"`
}

// DetectionReport is the result of one detection run. Reports are recomputed
// on every upload or radius change; there is no persisted history of runs.
type DetectionReport struct {
	RunID          string          `json:"run_id"`
	GeneratedAt    time.Time       `json:"generated_at"`
	RadiusMeters   float64         `json:"radius_m"`
	TrackName      string          `json:"track_name,omitempty"`
	TrackPoints    int             `json:"track_points"`    // full resolution, as parsed
	GeometryPoints int             `json:"geometry_points"` // after down-sampling
	TrackKm        float64         `json:"track_km"`
	Sightings      int             `json:"sightings"`  // collection size before filtering
	Candidates     int             `json:"candidates"` // survived the bounding-box pre-filter
	Hazards        []RouteHazard   `json:"hazards"`
	SourceCounts   map[string]int  `json:"source_counts,omitempty"` // hazards per source tag
	Bounds         Bounds          `json:"bounds"`                  // corridor box, for viewport fitting
	Corridor       json.RawMessage `json:"corridor,omitempty"`      // GeoJSON feature, display geometry only
}
