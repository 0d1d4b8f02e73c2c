package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kumawatch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kumawatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kumawatch",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Sighting ingestion metrics
	SightingsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kumawatch",
		Subsystem: "sightings",
		Name:      "ingested_total",
		Help:      "Total sighting records ingested from upstream feeds",
	}, []string{"source"})

	InvalidRecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kumawatch",
		Subsystem: "sightings",
		Name:      "invalid_records_dropped_total",
		Help:      "Total upstream records dropped for missing or invalid coordinates",
	}, []string{"source"})

	SourcePollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kumawatch",
		Subsystem: "sightings",
		Name:      "source_poll_duration_seconds",
		Help:      "Duration of upstream source polling",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	SourcePollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kumawatch",
		Subsystem: "sightings",
		Name:      "source_poll_errors_total",
		Help:      "Total upstream source poll errors",
	}, []string{"source"})

	// Detection metrics
	DetectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kumawatch",
		Subsystem: "detect",
		Name:      "runs_total",
		Help:      "Total detection runs by final status",
	}, []string{"status"})

	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kumawatch",
		Subsystem: "detect",
		Name:      "duration_seconds",
		Help:      "End-to-end detection run duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	HazardsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kumawatch",
		Subsystem: "detect",
		Name:      "hazards_found",
		Help:      "Hazards found per detection run",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kumawatch",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kumawatch",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kumawatch",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kumawatch",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kumawatch",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kumawatch",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics publishes pgx pool stats. The stat parameter is kept
// untyped so this package does not import pgxpool.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
