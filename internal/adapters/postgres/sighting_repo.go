package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// SightingRepo implements ports.SightingRepository.
type SightingRepo struct {
	db *DB
}

func NewSightingRepo(db *DB) *SightingRepo {
	return &SightingRepo{db: db}
}

// UpsertBatch inserts or refreshes sightings using pgx.Batch and returns the
// number of rows written.
func (r *SightingRepo) UpsertBatch(ctx context.Context, sightings []domain.Sighting) (int, error) {
	batch := &pgx.Batch{}
	for _, s := range sightings {
		batch.Queue(`
			INSERT INTO sightings (id, source, lat, lon, observed_at, description, place)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET observed_at = EXCLUDED.observed_at,
			    description = EXCLUDED.description,
			    place = EXCLUDED.place
		`, s.ID, s.Source, s.Location.Lat, s.Location.Lon,
			nilIfNoTime(s.ObservedAt), s.Description, s.Place)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range sightings {
		if _, err := br.Exec(); err != nil {
			return 0, fmt.Errorf("batch exec: %w", err)
		}
	}
	return len(sightings), nil
}

func (r *SightingRepo) ListAll(ctx context.Context) ([]domain.Sighting, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, source, lat, lon, observed_at, description, place
		FROM sightings
		ORDER BY observed_at DESC NULLS LAST, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSightings(rows)
}

// ListInBounds returns sightings inside a bounding box, newest first, along
// with the total match count for pagination. An empty source matches all
// sources.
func (r *SightingRepo) ListInBounds(ctx context.Context, b domain.Bounds, source string, limit, offset int) ([]domain.Sighting, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT count(*)
		FROM sightings
		WHERE lat BETWEEN $1 AND $2
		  AND lon BETWEEN $3 AND $4
		  AND ($5 = '' OR source = $5)
	`, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon, source).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, source, lat, lon, observed_at, description, place
		FROM sightings
		WHERE lat BETWEEN $1 AND $2
		  AND lon BETWEEN $3 AND $4
		  AND ($5 = '' OR source = $5)
		ORDER BY observed_at DESC NULLS LAST, id
		LIMIT $6 OFFSET $7
	`, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon, source, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sightings, err := scanSightings(rows)
	if err != nil {
		return nil, 0, err
	}
	return sightings, total, nil
}

func (r *SightingRepo) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT source, count(*) FROM sightings GROUP BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

func scanSightings(rows pgx.Rows) ([]domain.Sighting, error) {
	var sightings []domain.Sighting
	for rows.Next() {
		var s domain.Sighting
		var observedAt sql.NullTime
		if err := rows.Scan(
			&s.ID, &s.Source, &s.Location.Lat, &s.Location.Lon,
			&observedAt, &s.Description, &s.Place,
		); err != nil {
			return nil, err
		}
		if observedAt.Valid {
			t := observedAt.Time
			s.ObservedAt = &t
		}
		sightings = append(sightings, s)
	}
	return sightings, rows.Err()
}

func nilIfNoTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
