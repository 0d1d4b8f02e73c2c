package sources

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// Upstream feeds disagree on field names. Synonyms are resolved once per
// payload (from the CSV header or the first JSON record), not per record, so
// a feed that renames a column mid-file simply drops those rows.
var (
	latKeys   = []string{"lat", "latitude"}
	lonKeys   = []string{"lng", "lon", "longitude"}
	whenKeys  = []string{"sighted_at", "observed_at", "created_at", "date"}
	descKeys  = []string{"body", "description", "detail"}
	placeKeys = []string{"place_name", "place", "address"}
	idKeys    = []string{"id", "uuid"}
)

var whenLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
}

// fieldMap maps each domain field to the upstream key that carries it.
// An absent optional field maps to "".
type fieldMap struct {
	lat, lon, when, desc, place, id string
}

func resolveFields(keys map[string]struct{}) (fieldMap, error) {
	pick := func(candidates []string) string {
		for _, c := range candidates {
			if _, ok := keys[c]; ok {
				return c
			}
		}
		return ""
	}
	fm := fieldMap{
		lat:   pick(latKeys),
		lon:   pick(lonKeys),
		when:  pick(whenKeys),
		desc:  pick(descKeys),
		place: pick(placeKeys),
		id:    pick(idKeys),
	}
	if fm.lat == "" || fm.lon == "" {
		return fm, fmt.Errorf("no latitude/longitude field in %d keys", len(keys))
	}
	return fm, nil
}

// parseWhen tries the known upstream timestamp layouts. A value that matches
// none of them yields nil; the record keeps its location and sorts last.
func parseWhen(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// buildSighting validates one raw record. A missing or unparseable coordinate
// returns ok=false and the record is dropped; optional fields degrade to
// zero values.
func buildSighting(source string, fm fieldMap, get func(string) string, seq int) (domain.Sighting, bool) {
	lat, errA := strconv.ParseFloat(strings.TrimSpace(get(fm.lat)), 64)
	lon, errB := strconv.ParseFloat(strings.TrimSpace(get(fm.lon)), 64)
	if errA != nil || errB != nil {
		return domain.Sighting{}, false
	}
	loc := domain.GeoCoordinate{Lat: lat, Lon: lon}
	if !loc.Valid() {
		return domain.Sighting{}, false
	}

	s := domain.Sighting{
		Source:      source,
		Location:    loc,
		Description: strings.TrimSpace(get(fm.desc)),
		Place:       strings.TrimSpace(get(fm.place)),
	}
	if fm.when != "" {
		s.ObservedAt = parseWhen(get(fm.when))
	}
	if fm.id != "" {
		if id := strings.TrimSpace(get(fm.id)); id != "" {
			s.ID = source + ":" + id
		}
	}
	if s.ID == "" {
		// Natural key: stable across polls as long as the upstream record
		// keeps its position and timestamp.
		ts := int64(-1)
		if s.ObservedAt != nil {
			ts = s.ObservedAt.Unix()
		}
		s.ID = fmt.Sprintf("%s:%.5f:%.5f:%d:%d", source, lat, lon, ts, seq)
	}
	return s, true
}
