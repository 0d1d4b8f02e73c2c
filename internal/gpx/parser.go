// Package gpx parses GPX track files into the domain's track representation.
//
// Segment and track boundaries are flattened away on purpose: downstream
// geometry buffers one continuous polyline and has no use for them.
package gpx

import (
	"encoding/xml"
	"errors"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

type gpxPoint struct {
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

type gpxFile struct {
	XMLName xml.Name `xml:"gpx"`
	Tracks  []struct {
		Name     string `xml:"name"`
		Segments []struct {
			Points []gpxPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
	Routes []struct {
		Name   string     `xml:"name"`
		Points []gpxPoint `xml:"rtept"`
	} `xml:"rte"`
}

// Parse reads raw GPX bytes and flattens every track segment, in file order,
// into one ordered point sequence. Files with no <trk> data fall back to
// <rte> waypoint routes. A malformed byte stream fails with a
// *domain.ParseError; a well-formed file with zero points yields an empty
// track and no error, so callers can tell "file unreadable" from "route
// empty".
//
// Points with out-of-range coordinates are dropped rather than failing the
// parse; one bad point must not invalidate a whole recording.
func Parse(data []byte) (*domain.Track, error) {
	if len(data) == 0 {
		return nil, &domain.ParseError{Err: errors.New("empty input")}
	}

	var file gpxFile
	if err := xml.Unmarshal(data, &file); err != nil {
		return nil, &domain.ParseError{Err: err}
	}

	track := &domain.Track{}
	for _, trk := range file.Tracks {
		if track.Name == "" {
			track.Name = trk.Name
		}
		for _, seg := range trk.Segments {
			appendPoints(track, seg.Points)
		}
	}

	if len(track.Points) == 0 {
		for _, rte := range file.Routes {
			if track.Name == "" {
				track.Name = rte.Name
			}
			appendPoints(track, rte.Points)
		}
	}

	return track, nil
}

func appendPoints(track *domain.Track, pts []gpxPoint) {
	for _, p := range pts {
		g := domain.GeoCoordinate{Lat: p.Lat, Lon: p.Lon}
		if !g.Valid() {
			continue
		}
		track.Points = append(track.Points, g)
	}
}
