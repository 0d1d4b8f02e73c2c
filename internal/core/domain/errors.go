package domain

import "errors"

// ErrInsufficientPoints is returned when a track has fewer than two usable
// points. Kept distinct from ParseError so callers can say "route too short"
// instead of "file unreadable".
var ErrInsufficientPoints = errors.New("track has fewer than 2 points")

// ErrSuperseded is returned when a detection run was cancelled because a
// newer upload from the same client replaced it. Distinct from a plain
// context cancellation so callers can tell "replaced" from "caller went
// away".
var ErrSuperseded = errors.New("detection run superseded")

// ParseError wraps a malformed-track failure. Fatal to the detection run;
// the fix is a different input file, so nothing retries it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "track parse: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// GeometryError wraps a corridor-construction failure. A wrong corridor
// silently understates or overstates danger, so these abort the run rather
// than producing a best-effort result.
type GeometryError struct {
	Err error
}

func (e *GeometryError) Error() string {
	return "corridor geometry: " + e.Err.Error()
}

func (e *GeometryError) Unwrap() error { return e.Err }
