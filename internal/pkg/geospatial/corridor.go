package geospatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// displayTolerance is the Douglas-Peucker tolerance applied to the corridor
// outline before serialization, ≈50 m. Display geometry only; containment
// always runs against the unsimplified corridor.
const displayTolerance = 0.0005

// capSteps controls how many vertices approximate a semicircular end cap.
const capSteps = 12

// Corridor is the buffered safety zone around a track. Membership is the
// exact Minkowski buffer of the polyline: a point is inside iff its distance
// to the line is at most the degree radius, boundary inclusive. That is the
// same point set as the union of per-segment stadium shapes, without the
// polygon-union artifacts.
//
// A Corridor is immutable; changing the track or radius means building a new
// one.
type Corridor struct {
	line         orb.LineString
	radiusMeters float64
	radiusDeg    float64
	metersPerDeg float64
	bound        orb.Bound
}

// BuildCorridor converts the (possibly down-sampled) track to planar points
// and buffers it by radiusMeters. Tracks with fewer than 2 points fail with
// domain.ErrInsufficientPoints; the caller must refuse detection rather than
// silently skip it.
func BuildCorridor(points []domain.GeoCoordinate, radiusMeters float64, conv DegreeConverter) (*Corridor, error) {
	if len(points) < 2 {
		return nil, domain.ErrInsufficientPoints
	}
	if radiusMeters <= 0 {
		return nil, &domain.GeometryError{Err: fmt.Errorf("radius must be positive, got %v", radiusMeters)}
	}
	if conv == nil {
		conv = FixedJapan
	}

	line := make(orb.LineString, len(points))
	var latSum float64
	for i, p := range points {
		if !p.Valid() {
			return nil, &domain.GeometryError{Err: fmt.Errorf("track point %d outside WGS 84 domain", i)}
		}
		line[i] = p.Planar()
		latSum += p.Lat
	}

	metersPerDeg := conv(latSum / float64(len(points)))
	if metersPerDeg <= 0 || math.IsNaN(metersPerDeg) {
		return nil, &domain.GeometryError{Err: errors.New("degree converter returned a non-positive span")}
	}
	radiusDeg := radiusMeters / metersPerDeg

	return &Corridor{
		line:         line,
		radiusMeters: radiusMeters,
		radiusDeg:    radiusDeg,
		metersPerDeg: metersPerDeg,
		bound:        line.Bound().Pad(radiusDeg),
	}, nil
}

// Bounds returns the corridor's bounding box in geographic order. The box is
// the track bound padded by the full degree radius, so the bounding-box
// pre-filter can never exclude a point the exact test would accept.
func (c *Corridor) Bounds() domain.Bounds {
	return domain.BoundsFromOrb(c.bound)
}

// RadiusMeters returns the configured buffer radius.
func (c *Corridor) RadiusMeters() float64 { return c.radiusMeters }

// MetersPerDegree returns the conversion the corridor was built with, so
// classification can report distances consistent with the membership test.
func (c *Corridor) MetersPerDegree() float64 { return c.metersPerDeg }

// Contains performs the exact, boundary-inclusive membership test for a
// planar point.
func (c *Corridor) Contains(pt orb.Point) bool {
	return planar.DistanceFrom(c.line, pt) <= c.radiusDeg
}

// Nearest returns the closest point on the track line to pt, plus the
// separation in degrees. Auxiliary projection for the "nearest approach"
// visualization; it plays no part in the membership decision.
func (c *Corridor) Nearest(pt orb.Point) (orb.Point, float64) {
	best := c.line[0]
	bestDist := math.Inf(1)
	for i := 1; i < len(c.line); i++ {
		p := closestOnSegment(c.line[i-1], c.line[i], pt)
		if d := planar.Distance(p, pt); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best, bestDist
}

// closestOnSegment projects pt onto segment ab, clamped to the endpoints.
func closestOnSegment(a, b, pt orb.Point) orb.Point {
	dx, dy := b.X()-a.X(), b.Y()-a.Y()
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}
	t := ((pt.X()-a.X())*dx + (pt.Y()-a.Y())*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return orb.Point{a.X() + t*dx, a.Y() + t*dy}
}

// Outline traces the buffer boundary as a single ring: offset edges on each
// side with round joins and semicircular end caps. Sharp switchbacks can make
// the ring self-overlap slightly, which renders fine as a filled polygon.
// Display only, never used for containment.
func (c *Corridor) Outline() orb.Polygon {
	r := c.radiusDeg

	// Collapse zero-length segments; a fully degenerate track buffers to a
	// disk around its single location.
	var pts []orb.Point
	for _, p := range c.line {
		if len(pts) == 0 || p != pts[len(pts)-1] {
			pts = append(pts, p)
		}
	}
	if len(pts) == 1 {
		ring := appendArc(nil, pts[0], r, 0, 2*math.Pi, 4*capSteps)
		ring = append(ring, ring[0])
		return orb.Polygon{orb.Ring(ring)}
	}

	normals := make([]orb.Point, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		dx, dy := pts[i].X()-pts[i-1].X(), pts[i].Y()-pts[i-1].Y()
		l := math.Hypot(dx, dy)
		normals[i-1] = orb.Point{-dy / l, dx / l} // left-hand unit normal
	}

	var ring []orb.Point

	// Left side, forward.
	for i := 0; i < len(pts)-1; i++ {
		n := normals[i]
		ring = append(ring,
			orb.Point{pts[i].X() + n.X()*r, pts[i].Y() + n.Y()*r},
			orb.Point{pts[i+1].X() + n.X()*r, pts[i+1].Y() + n.Y()*r},
		)
		if i+1 < len(pts)-1 {
			ring = appendJoin(ring, pts[i+1], r, n, normals[i+1])
		}
	}

	// End cap: sweep from the left normal through the forward direction to
	// the right normal.
	last := pts[len(pts)-1]
	endAng := math.Atan2(normals[len(normals)-1].Y(), normals[len(normals)-1].X())
	ring = appendArc(ring, last, r, endAng, -math.Pi, capSteps)

	// Right side, backward.
	for i := len(pts) - 2; i >= 0; i-- {
		n := normals[i]
		ring = append(ring,
			orb.Point{pts[i+1].X() - n.X()*r, pts[i+1].Y() - n.Y()*r},
			orb.Point{pts[i].X() - n.X()*r, pts[i].Y() - n.Y()*r},
		)
		if i > 0 {
			ring = appendJoin(ring, pts[i], r,
				orb.Point{-n.X(), -n.Y()},
				orb.Point{-normals[i-1].X(), -normals[i-1].Y()})
		}
	}

	// Start cap.
	startAng := math.Atan2(-normals[0].Y(), -normals[0].X())
	ring = appendArc(ring, pts[0], r, startAng, -math.Pi, capSteps)

	ring = append(ring, ring[0])
	return orb.Polygon{orb.Ring(ring)}
}

// appendJoin arcs around a joint vertex from one offset normal to the next,
// along the shorter angular path.
func appendJoin(dst []orb.Point, center orb.Point, r float64, from, to orb.Point) []orb.Point {
	a0 := math.Atan2(from.Y(), from.X())
	a1 := math.Atan2(to.Y(), to.X())
	sweep := math.Mod(a1-a0+3*math.Pi, 2*math.Pi) - math.Pi
	steps := int(math.Abs(sweep)/(math.Pi/capSteps)) + 1
	return appendArc(dst, center, r, a0, sweep, steps)
}

// appendArc appends points on a circular arc starting at angle from and
// sweeping by the signed sweep, including the end point.
func appendArc(dst []orb.Point, center orb.Point, r, from, sweep float64, steps int) []orb.Point {
	if steps < 2 {
		steps = 2
	}
	for i := 1; i <= steps; i++ {
		a := from + sweep*float64(i)/float64(steps)
		dst = append(dst, orb.Point{
			center.X() + r*math.Cos(a),
			center.Y() + r*math.Sin(a),
		})
	}
	return dst
}

// DisplayFeature serializes the corridor outline as a GeoJSON feature,
// simplified for rendering weight. The simplification never touches the
// geometry used for containment.
func (c *Corridor) DisplayFeature() *geojson.Feature {
	poly := c.Outline()
	simplified := simplify.DouglasPeucker(displayTolerance).Polygon(poly.Clone())

	f := geojson.NewFeature(simplified)
	f.Properties["kind"] = "safety_corridor"
	f.Properties["radius_m"] = c.radiusMeters
	return f
}
