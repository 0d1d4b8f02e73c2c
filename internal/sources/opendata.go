package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/pkg/metrics"
)

// OpenData pulls a prefecture open-data sighting CSV over HTTP. Each
// prefecture publishes its own column names; the header synonym table in
// fields.go absorbs the variation.
type OpenData struct {
	name   string
	url    string
	client *http.Client
}

func NewOpenData(name, url string) *OpenData {
	return &OpenData{name: name, url: url, client: defaultClient()}
}

func (o *OpenData) Name() string { return o.name }

func (o *OpenData) Fetch(ctx context.Context) ([]domain.Sighting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", o.name, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", o.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", o.name, resp.StatusCode)
	}
	return DecodeCSV(resp.Body, o.name)
}

// DecodeCSV reads a sighting CSV with a header row. Rows missing a usable
// coordinate are dropped, never fatal; a header without any coordinate column
// is. Used by both the poller and the offline CLI.
func DecodeCSV(r io.Reader, source string) ([]domain.Sighting, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", source, err)
	}
	index := make(map[string]int, len(header))
	keys := make(map[string]struct{}, len(header))
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		index[col] = i
		keys[col] = struct{}{}
	}
	fm, err := resolveFields(keys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	var out []domain.Sighting
	for seq := 0; ; seq++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			metrics.InvalidRecordsDropped.WithLabelValues(source).Inc()
			continue
		}
		get := func(key string) string {
			i, ok := index[key]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		s, ok := buildSighting(source, fm, get, seq)
		if !ok {
			metrics.InvalidRecordsDropped.WithLabelValues(source).Inc()
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
