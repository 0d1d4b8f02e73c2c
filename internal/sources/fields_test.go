package sources

import (
	"testing"
	"time"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func TestResolveFields_Synonyms(t *testing.T) {
	fm, err := resolveFields(keySet("latitude", "longitude", "date", "detail", "address", "uuid"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if fm.lat != "latitude" || fm.lon != "longitude" {
		t.Errorf("coordinate keys: %+v", fm)
	}
	if fm.when != "date" || fm.desc != "detail" || fm.place != "address" || fm.id != "uuid" {
		t.Errorf("optional keys: %+v", fm)
	}
}

func TestResolveFields_PrefersCanonicalNames(t *testing.T) {
	// When a feed carries both spellings the first synonym wins.
	fm, err := resolveFields(keySet("lat", "latitude", "lng", "lon", "sighted_at", "created_at"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if fm.lat != "lat" || fm.lon != "lng" || fm.when != "sighted_at" {
		t.Errorf("synonym priority: %+v", fm)
	}
}

func TestResolveFields_MissingCoordinates(t *testing.T) {
	if _, err := resolveFields(keySet("date", "description")); err == nil {
		t.Fatal("expected error when no coordinate column exists")
	}
	if _, err := resolveFields(keySet("lat", "date")); err == nil {
		t.Fatal("expected error when only latitude exists")
	}
}

func TestParseWhen(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-10-03 14:30:00", "2025-10-03T14:30:00Z"},
		{"2025-10-03T14:30:00Z", "2025-10-03T14:30:00Z"},
		{"2025-10-03", "2025-10-03T00:00:00Z"},
		{"2025/10/03", "2025-10-03T00:00:00Z"},
		{"  2025-10-03  ", "2025-10-03T00:00:00Z"},
	}
	for _, tc := range cases {
		got := parseWhen(tc.in)
		if got == nil {
			t.Errorf("parseWhen(%q) = nil", tc.in)
			continue
		}
		if got.UTC().Format(time.RFC3339) != tc.want {
			t.Errorf("parseWhen(%q) = %v, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseWhen_Unparseable(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "03-10-2025", "1696343400"} {
		if got := parseWhen(in); got != nil {
			t.Errorf("parseWhen(%q) = %v, want nil", in, got)
		}
	}
}

func TestBuildSighting(t *testing.T) {
	fm := fieldMap{lat: "lat", lon: "lng", when: "date", desc: "body", place: "place", id: "id"}
	rec := map[string]string{
		"lat": "39.71", "lng": "140.10", "date": "2025-10-03",
		"body": " bear crossing road ", "place": "Akita", "id": "553",
	}
	get := func(k string) string { return rec[k] }

	s, ok := buildSighting("kumadas", fm, get, 0)
	if !ok {
		t.Fatal("valid record dropped")
	}
	if s.ID != "kumadas:553" {
		t.Errorf("expected source-prefixed ID, got %q", s.ID)
	}
	if s.Location.Lat != 39.71 || s.Location.Lon != 140.10 {
		t.Errorf("location: %+v", s.Location)
	}
	if s.Description != "bear crossing road" || s.Place != "Akita" {
		t.Errorf("text fields not trimmed: %+v", s)
	}
	if s.ObservedAt == nil {
		t.Error("timestamp not parsed")
	}
}

func TestBuildSighting_NaturalKey(t *testing.T) {
	fm := fieldMap{lat: "lat", lon: "lng"}
	get := func(k string) string {
		return map[string]string{"lat": "39.71000", "lng": "140.10000"}[k]
	}

	a, ok := buildSighting("iwate", fm, get, 3)
	if !ok {
		t.Fatal("valid record dropped")
	}
	if a.ID != "iwate:39.71000:140.10000:-1:3" {
		t.Errorf("natural key: %q", a.ID)
	}

	// Same record at the same row position keys identically across polls.
	b, _ := buildSighting("iwate", fm, get, 3)
	if a.ID != b.ID {
		t.Errorf("natural key unstable: %q vs %q", a.ID, b.ID)
	}
}

func TestBuildSighting_DropsInvalid(t *testing.T) {
	fm := fieldMap{lat: "lat", lon: "lng"}
	cases := []map[string]string{
		{"lat": "", "lng": "140.1"},
		{"lat": "39.7", "lng": "not a number"},
		{"lat": "91.0", "lng": "140.1"},
		{"lat": "39.7", "lng": "181.0"},
	}
	for i, rec := range cases {
		rec := rec
		if _, ok := buildSighting("t", fm, func(k string) string { return rec[k] }, i); ok {
			t.Errorf("case %d: invalid record kept: %v", i, rec)
		}
	}
}

func TestDedupe(t *testing.T) {
	when := time.Date(2025, 10, 3, 8, 0, 0, 0, time.UTC)
	rec := func(id string, lat, lon float64, at *time.Time) domain.Sighting {
		return domain.Sighting{ID: id, Location: domain.GeoCoordinate{Lat: lat, Lon: lon}, ObservedAt: at}
	}
	in := []domain.Sighting{
		rec("a", 39.71, 140.10, &when),
		rec("b", 39.71, 140.10, &when), // same place, same time
		rec("c", 39.71, 140.10, nil),   // same place, no time
		rec("d", 39.72, 140.10, &when),
	}
	out := Dedupe(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 after dedupe, got %d", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "c" || out[2].ID != "d" {
		for _, s := range out {
			t.Logf("kept %s", s.ID)
		}
		t.Error("wrong survivors")
	}
}
