package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	httpadapter "github.com/trailsafe/kumawatch/internal/adapters/http"
	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/core/usecases"
)

// --- Mock SightingRepository ---

type mockSightingRepo struct {
	upsertBatchFn   func(ctx context.Context, sightings []domain.Sighting) (int, error)
	listAllFn       func(ctx context.Context) ([]domain.Sighting, error)
	listInBoundsFn  func(ctx context.Context, b domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error)
	countBySourceFn func(ctx context.Context) (map[string]int, error)
}

func (m *mockSightingRepo) UpsertBatch(ctx context.Context, s []domain.Sighting) (int, error) {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, s)
	}
	return len(s), nil
}

func (m *mockSightingRepo) ListAll(ctx context.Context) ([]domain.Sighting, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockSightingRepo) ListInBounds(ctx context.Context, b domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error) {
	if m.listInBoundsFn != nil {
		return m.listInBoundsFn(ctx, b, source, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockSightingRepo) CountBySource(ctx context.Context) (map[string]int, error) {
	if m.countBySourceFn != nil {
		return m.countBySourceFn(ctx)
	}
	return nil, nil
}

// --- Test app setup ---

func setupApp(t *testing.T, repo *mockSightingRepo) *fiber.App {
	t.Helper()

	detections, err := usecases.NewDetectionService(repo, nil, nil, usecases.DetectionOptions{
		DefaultRadiusMeters: 1000,
		MaxRadiusMeters:     10000,
		Workers:             2,
	})
	if err != nil {
		t.Fatalf("detection service: %v", err)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httpadapter.SetupRoutes(app, &httpadapter.Dependencies{
		Sightings:  usecases.NewSightingService(repo, nil),
		Detections: detections,
	})
	return app
}

func gpxUpload(t *testing.T, gpxData string, fields map[string]string) *nethttp.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("track", "route.gpx")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte(gpxData)); err != nil {
		t.Fatalf("write track: %v", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	w.Close()

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/detections", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

const straightGPX = `<gpx version="1.1"><trk><name>ridge walk</name><trkseg>
<trkpt lat="35.000" lon="138.000"></trkpt>
<trkpt lat="35.010" lon="138.000"></trkpt>
</trkseg></trk></gpx>`

func decodeBody(t *testing.T, resp *nethttp.Response, v interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode body: %v\n%s", err, data)
	}
}

// --- Tests ---

func TestCreateDetection(t *testing.T) {
	repo := &mockSightingRepo{
		listAllFn: func(ctx context.Context) ([]domain.Sighting, error) {
			return []domain.Sighting{
				{ID: "near", Source: "kumadas", Location: domain.GeoCoordinate{Lat: 35.005, Lon: 138.002}},
				{ID: "far", Source: "kumadas", Location: domain.GeoCoordinate{Lat: 35.005, Lon: 138.500}},
			}, nil
		},
	}
	app := setupApp(t, repo)

	req := gpxUpload(t, straightGPX, map[string]string{"radius": "500"})
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control: %q", cc)
	}

	var report domain.DetectionReport
	decodeBody(t, resp, &report)
	if report.TrackName != "ridge walk" || report.TrackPoints != 2 {
		t.Errorf("track metadata: %+v", report)
	}
	if report.RadiusMeters != 500 {
		t.Errorf("radius: %v", report.RadiusMeters)
	}
	if len(report.Hazards) != 1 || report.Hazards[0].Sighting.ID != "near" {
		t.Fatalf("hazards: %+v", report.Hazards)
	}
}

func TestCreateDetection_DefaultRadius(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	resp, err := app.Test(gpxUpload(t, straightGPX, nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var report domain.DetectionReport
	decodeBody(t, resp, &report)
	if report.RadiusMeters != 1000 {
		t.Errorf("expected default radius, got %v", report.RadiusMeters)
	}
}

func TestCreateDetection_MissingTrack(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("radius", "500")
	w.Close()
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/detections", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCreateDetection_MalformedGPX(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	resp, err := app.Test(gpxUpload(t, "this is not xml", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var apiErr httpadapter.APIError
	decodeBody(t, resp, &apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("code: %q", apiErr.Code)
	}
}

func TestCreateDetection_TooShort(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	onePoint := `<gpx version="1.1"><trk><trkseg><trkpt lat="35.0" lon="138.0"></trkpt></trkseg></trk></gpx>`
	resp, err := app.Test(gpxUpload(t, onePoint, nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCreateDetection_BadRadius(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	for _, radius := range []string{"abc", "-100", "999999"} {
		resp, err := app.Test(gpxUpload(t, straightGPX, map[string]string{"radius": radius}), -1)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("radius %q: status %d", radius, resp.StatusCode)
		}
	}
}

func TestListSightings(t *testing.T) {
	repo := &mockSightingRepo{
		listInBoundsFn: func(ctx context.Context, b domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error) {
			if b.MinLat != 34 || b.MaxLat != 36 {
				t.Errorf("bounds not passed through: %+v", b)
			}
			if source != "kumadas" {
				t.Errorf("source: %q", source)
			}
			return []domain.Sighting{
				{ID: "s1", Source: "kumadas", Location: domain.GeoCoordinate{Lat: 35.0, Lon: 138.0}},
			}, 41, nil
		},
	}
	app := setupApp(t, repo)

	req := httptest.NewRequest(nethttp.MethodGet,
		"/v1/sightings?min_lat=34&min_lon=137&max_lat=36&max_lon=139&source=kumadas&limit=10&offset=20", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	link := resp.Header.Get("Link")
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("Link header missing %s: %s", rel, link)
		}
	}

	var body struct {
		Data       []domain.Sighting      `json:"data"`
		Pagination httpadapter.Pagination `json:"pagination"`
	}
	decodeBody(t, resp, &body)
	if len(body.Data) != 1 || body.Data[0].ID != "s1" {
		t.Errorf("data: %+v", body.Data)
	}
	if body.Pagination.Total != 41 || body.Pagination.Offset != 20 || body.Pagination.Limit != 10 {
		t.Errorf("pagination: %+v", body.Pagination)
	}
}

func TestListSightings_InvertedBounds(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	req := httptest.NewRequest(nethttp.MethodGet,
		"/v1/sightings?min_lat=36&max_lat=34", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestSightingSources(t *testing.T) {
	repo := &mockSightingRepo{
		countBySourceFn: func(ctx context.Context) (map[string]int, error) {
			return map[string]int{"kumadas": 30, "akita-pref": 12}, nil
		},
	}
	app := setupApp(t, repo)

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/v1/sightings/sources", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body struct {
		Sources map[string]int `json:"sources"`
		Total   int            `json:"total"`
	}
	decodeBody(t, resp, &body)
	if body.Total != 42 || body.Sources["kumadas"] != 30 {
		t.Errorf("body: %+v", body)
	}
}

func TestHealth(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/v1/health", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("X-API-Version: %q", v)
	}
}

func TestReady_NotConfigured(t *testing.T) {
	// Without a database the service reports not ready.
	app := setupApp(t, &mockSightingRepo{})

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/v1/ready", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	app := setupApp(t, &mockSightingRepo{})

	req := httptest.NewRequest(nethttp.MethodGet, "/v1/sightings?min_lat=36&max_lat=34", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var apiErr httpadapter.APIError
	decodeBody(t, resp, &apiErr)
	if apiErr.RequestID == "" {
		t.Error("request ID missing from error body")
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
}

func TestGraphQLSightings(t *testing.T) {
	repo := &mockSightingRepo{
		listInBoundsFn: func(ctx context.Context, b domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error) {
			return []domain.Sighting{
				{ID: "g1", Source: "kumadas", Location: domain.GeoCoordinate{Lat: 35.1, Lon: 138.1}},
			}, 1, nil
		},
	}
	app := setupApp(t, repo)

	query := `{"query": "{ sightings(min_lat: 34, min_lon: 137, max_lat: 36, max_lon: 139) { id source } }"}`
	req := httptest.NewRequest(nethttp.MethodPost, "/graphql", strings.NewReader(query))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var body struct {
		Data struct {
			Sightings []struct {
				ID     string `json:"id"`
				Source string `json:"source"`
			} `json:"sightings"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	decodeBody(t, resp, &body)
	if len(body.Errors) > 0 {
		t.Fatalf("graphql errors: %v", body.Errors)
	}
	if len(body.Data.Sightings) != 1 || body.Data.Sightings[0].ID != "g1" {
		t.Errorf("data: %+v", body.Data)
	}
}

func TestDetectionSupersedesPreviousUpload(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	repo := &mockSightingRepo{
		listAllFn: func(ctx context.Context) ([]domain.Sighting, error) {
			calls++
			if calls == 1 {
				close(entered)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-release:
					return nil, nil
				}
			}
			return nil, nil
		},
	}
	app := setupApp(t, repo)

	type result struct {
		status int
		err    error
	}
	results := make(chan result, 1)
	go func() {
		req := gpxUpload(t, straightGPX, nil)
		req.Header.Set("X-Client-Key", "hiker-7")
		resp, err := app.Test(req, -1)
		if err != nil {
			results <- result{err: err}
			return
		}
		results <- result{status: resp.StatusCode}
	}()

	<-entered

	req := gpxUpload(t, straightGPX, nil)
	req.Header.Set("X-Client-Key", "hiker-7")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("second upload status %d", resp.StatusCode)
	}

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("first upload: %v", r.err)
		}
		if r.status != fiber.StatusConflict {
			t.Fatalf("first upload should answer 409, got %d", r.status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("first upload never answered")
	}
	close(release)
}
