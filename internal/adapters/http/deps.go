package http

import (
	"github.com/nats-io/nats.go"

	"github.com/trailsafe/kumawatch/internal/adapters/postgres"
	"github.com/trailsafe/kumawatch/internal/adapters/valkey"
	"github.com/trailsafe/kumawatch/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Sightings  *usecases.SightingService
	Detections *usecases.DetectionService
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
}
