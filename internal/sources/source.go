// Package sources fetches sighting records from regional open-data feeds and
// reshapes them into cleaned domain records. Everything source-specific
// (field-name synonyms, auth headers, timestamp formats) stays here; the
// detection core only ever sees validated Sightings.
package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// Source is one upstream provider of sighting records.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Sighting, error)
}

// Dedupe collapses records that describe the same observation across merged
// sources: same rounded location (~1 m) and same timestamp. Off by default;
// identical sightings reported by two prefectures arguably are two reports.
func Dedupe(records []domain.Sighting) []domain.Sighting {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		ts := int64(-1)
		if r.ObservedAt != nil {
			ts = r.ObservedAt.Unix()
		}
		key := fmt.Sprintf("%.5f:%.5f:%d", r.Location.Lat, r.Location.Lon, ts)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
