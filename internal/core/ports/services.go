package ports

import (
	"context"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	// PublishSightingBatch announces that a poll cycle landed count records
	// from a source.
	PublishSightingBatch(ctx context.Context, source string, count int) error
	PublishDetection(ctx context.Context, report *domain.DetectionReport) error
}

// CacheService provides read-through caching with an injected TTL.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
