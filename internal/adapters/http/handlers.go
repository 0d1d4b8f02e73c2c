package http

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trailsafe/kumawatch/internal/core/domain"
	"github.com/trailsafe/kumawatch/internal/core/usecases"
	"github.com/trailsafe/kumawatch/internal/pkg/metrics"
)

// maxTrackBytes caps the accepted GPX upload size.
const maxTrackBytes = 8 * 1024 * 1024

// CreateDetectionHandler runs a route hazard detection: a GPX file uploaded
// as multipart field "track" plus an optional "radius" in meters. The caller
// may pass X-Client-Key; a second upload with the same key supersedes a
// still-running one.
func CreateDetectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("track")
		if err != nil {
			return errBadRequest(c, "multipart field 'track' with a GPX file is required")
		}
		if fileHeader.Size > maxTrackBytes {
			return errBadRequest(c, "track file too large")
		}

		f, err := fileHeader.Open()
		if err != nil {
			return errBadRequest(c, "cannot open uploaded track")
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return errBadRequest(c, "cannot read uploaded track")
		}

		radius := 0.0
		if raw := c.FormValue("radius"); raw != "" {
			v, perr := strconv.ParseFloat(raw, 64)
			if perr != nil {
				return errBadRequest(c, "radius must be a number of meters")
			}
			radius = v
		}

		clientKey := c.Get("X-Client-Key")
		if clientKey == "" {
			clientKey = c.IP()
		}

		start := time.Now()
		report, err := deps.Detections.Run(c.Context(), usecases.DetectionRequest{
			TrackData:    data,
			RadiusMeters: radius,
			ClientKey:    clientKey,
		})
		metrics.DetectionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			var parseErr *domain.ParseError
			var geomErr *domain.GeometryError
			switch {
			case errors.As(err, &parseErr):
				metrics.DetectionRuns.WithLabelValues("parse_error").Inc()
				return errBadRequest(c, parseErr.Error())
			case errors.Is(err, domain.ErrInsufficientPoints):
				metrics.DetectionRuns.WithLabelValues("too_short").Inc()
				return errUnprocessable(c, "route too short: at least two valid points are required")
			case errors.Is(err, domain.ErrSuperseded):
				metrics.DetectionRuns.WithLabelValues("superseded").Inc()
				return errConflict(c, "detection superseded by a newer request")
			case errors.Is(err, context.Canceled):
				metrics.DetectionRuns.WithLabelValues("canceled").Inc()
				return errClientClosed(c, "request canceled")
			case errors.As(err, &geomErr):
				metrics.DetectionRuns.WithLabelValues("geometry_error").Inc()
				return errBadRequest(c, geomErr.Error())
			default:
				metrics.DetectionRuns.WithLabelValues("error").Inc()
				return errInternal(c, err.Error())
			}
		}

		metrics.DetectionRuns.WithLabelValues("ok").Inc()
		metrics.HazardsFound.Observe(float64(len(report.Hazards)))
		LoggerFromCtx(c.UserContext()).Info("detection complete",
			"run_id", report.RunID,
			"track_points", report.TrackPoints,
			"candidates", report.Candidates,
			"hazards", len(report.Hazards),
			"duration", time.Since(start).String(),
		)

		c.Set("Cache-Control", "no-store")
		return c.Status(fiber.StatusCreated).JSON(report)
	}
}

// ListSightingsHandler returns sightings inside a bounding box, newest first.
// GET /v1/sightings?min_lat=&min_lon=&max_lat=&max_lon=&source=&limit=&offset=
func ListSightingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bounds := domain.Bounds{
			MinLat: c.QueryFloat("min_lat", -90),
			MinLon: c.QueryFloat("min_lon", -180),
			MaxLat: c.QueryFloat("max_lat", 90),
			MaxLon: c.QueryFloat("max_lon", 180),
		}
		if bounds.MinLat > bounds.MaxLat || bounds.MinLon > bounds.MaxLon {
			return errBadRequest(c, "bounding box is inverted")
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		sightings, total, err := deps.Sightings.ListInBounds(
			c.Context(), bounds, c.Query("source"), limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: sightings, Pagination: pg})
	}
}

// SightingSourcesHandler returns record counts per source tag.
func SightingSourcesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		counts, err := deps.Sightings.SourceCounts(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		total := 0
		for _, n := range counts {
			total += n
		}
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(fiber.Map{
			"sources": counts,
			"total":   total,
		})
	}
}

// DataStats holds statistics about the ingested sighting data.
type DataStats struct {
	Sightings  int    `json:"sightings"`
	Sources    int    `json:"sources"`
	LastIngest string `json:"last_ingest,omitempty"`
}

// DataStatsHandler returns row counts from the sightings table.
func DataStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats DataStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM sightings),
				(SELECT count(DISTINCT source) FROM sightings),
				COALESCE((SELECT max(created_at)::text FROM sightings), '')
		`)
		if err := row.Scan(&stats.Sightings, &stats.Sources, &stats.LastIngest); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
