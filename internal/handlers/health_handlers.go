package handlers

import (
	"context"
	"net/http"
	"time"

	"stockroom/internal/caching"
	"stockroom/internal/services"

	"github.com/labstack/echo/v4"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db       Pinger
	cache    caching.SummaryCache
	archiver services.TagArchiver
	version  string
	started  time.Time
}

// NewHealthHandlers creates a new health handlers instance. cache and
// archiver may be nil when those backends are not configured.
func NewHealthHandlers(db Pinger, cache caching.SummaryCache, archiver services.TagArchiver, version string) *HealthHandlers {
	return &HealthHandlers{
		db:       db,
		cache:    cache,
		archiver: archiver,
		version:  version,
		started:  time.Now(),
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
}

// HealthCheck reports every backend. Optional backends only degrade.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}

	check := func(name string, configured bool, fn func(context.Context) error) {
		switch {
		case !configured:
			health.Services[name] = "disabled"
		case fn(ctx) != nil:
			health.Services[name] = "unhealthy"
			health.Status = "degraded"
		default:
			health.Services[name] = "healthy"
		}
	}

	check("database", h.db != nil, h.checkDatabase)
	check("redis", h.cache != nil, h.checkRedis)
	check("storage", h.archiver != nil, h.checkMinIO)

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}

	return c.JSON(statusCode, health)
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) error {
	return h.db.Ping(ctx)
}

func (h *HealthHandlers) checkRedis(ctx context.Context) error {
	return h.cache.Ping(ctx)
}

func (h *HealthHandlers) checkMinIO(ctx context.Context) error {
	return h.archiver.Ping(ctx)
}

// ReadinessCheck only depends on the database. Summaries fall back to
// direct computation when redis is down.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	if h.db == nil || h.checkDatabase(ctx) != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "Database unavailable",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All critical systems operational",
	})
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
