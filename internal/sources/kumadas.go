package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/pkg/metrics"
)

// KumadasConfig holds the search parameters and credentials for the Kumadas
// sighting API. The API is a POST search endpoint: a center point, a radius
// and filter lists, answering with a JSON array of sighting records.
type KumadasConfig struct {
	URL              string
	AppID            string
	APIKey           string
	CenterLat        float64
	CenterLon        float64
	RadiusKm         float64
	InfoTypeIDs      []int
	AnimalSpeciesIDs []int
	WindowDays       int
}

type Kumadas struct {
	cfg    KumadasConfig
	client *http.Client
	now    func() time.Time
}

func NewKumadas(cfg KumadasConfig) *Kumadas {
	return &Kumadas{cfg: cfg, client: defaultClient(), now: time.Now}
}

func (k *Kumadas) Name() string { return "kumadas" }

type kumadasRequest struct {
	Lat    float64       `json:"lat"`
	Lng    float64       `json:"lng"`
	Filter kumadasFilter `json:"filter"`
}

type kumadasFilter struct {
	Radius           float64 `json:"radius"`
	InfoTypeIDs      []int   `json:"info_type_ids"`
	AnimalSpeciesIDs []int   `json:"animal_species_ids"`
	StartDate        string  `json:"startdate"`
	EndDate          string  `json:"enddate"`
}

func (k *Kumadas) Fetch(ctx context.Context) ([]domain.Sighting, error) {
	end := k.now()
	start := end.AddDate(0, 0, -k.cfg.WindowDays)
	body, err := json.Marshal(kumadasRequest{
		Lat: k.cfg.CenterLat,
		Lng: k.cfg.CenterLon,
		Filter: kumadasFilter{
			Radius:           k.cfg.RadiusKm,
			InfoTypeIDs:      k.cfg.InfoTypeIDs,
			AnimalSpeciesIDs: k.cfg.AnimalSpeciesIDs,
			StartDate:        start.Format("2006-01-02"),
			EndDate:          end.Format("2006-01-02"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode kumadas request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build kumadas request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if k.cfg.AppID != "" {
		req.Header.Set("X-App-Id", k.cfg.AppID)
	}
	if k.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", k.cfg.APIKey)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kumadas request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kumadas returned status %d", resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read kumadas response: %w", err)
	}
	return DecodeJSON(payload, k.Name())
}

// DecodeJSON turns a kumadas-shaped payload into sightings. The endpoint has
// been seen answering both with a bare array and with {"data": [...]}.
func DecodeJSON(payload []byte, source string) ([]domain.Sighting, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		var wrapped struct {
			Data []map[string]json.RawMessage `json:"data"`
		}
		if err2 := json.Unmarshal(payload, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode %s payload: %w", source, err)
		}
		records = wrapped.Data
	}
	if len(records) == 0 {
		return nil, nil
	}

	keys := make(map[string]struct{}, len(records[0]))
	for key := range records[0] {
		keys[key] = struct{}{}
	}
	fm, err := resolveFields(keys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	out := make([]domain.Sighting, 0, len(records))
	for i, rec := range records {
		get := func(key string) string {
			if key == "" {
				return ""
			}
			return rawToString(rec[key])
		}
		s, ok := buildSighting(source, fm, get, i)
		if !ok {
			metrics.InvalidRecordsDropped.WithLabelValues(source).Inc()
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// rawToString reads a JSON scalar as its string form. Feeds ship coordinates
// both as numbers and as quoted strings.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
