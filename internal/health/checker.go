package health

import (
	"context"
	"sync"
	"time"

	"github.com/loveucifer/visceral/internal/domain"
)

// SystemHealthChecker implements comprehensive system health monitoring
type SystemHealthChecker struct {
	repository domain.RuleRepository
	cache      domain.ResultCache

	// Health check configuration
	timeout   time.Duration
	startTime time.Time

	// Cached health status to avoid expensive checks on every request
	lastCheck   time.Time
	lastHealth  domain.SystemHealth
	cacheTTL    time.Duration
	healthMutex sync.RWMutex
}

// NewSystemHealthChecker creates a new system health checker
func NewSystemHealthChecker(
	repository domain.RuleRepository,
	cache domain.ResultCache,
) *SystemHealthChecker {
	return &SystemHealthChecker{
		repository: repository,
		cache:      cache,
		timeout:    5 * time.Second,
		cacheTTL:   30 * time.Second,
		startTime:  time.Now(),
	}
}

// CheckHealth performs a comprehensive system health check
func (h *SystemHealthChecker) CheckHealth(ctx context.Context) domain.SystemHealth {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()

	// Return cached result if still valid
	if time.Since(h.lastCheck) < h.cacheTTL {
		return h.lastHealth
	}

	// Create context with timeout for health checks
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := time.Now()
	components := make(map[string]domain.HealthStatus)
	overallStatus := domain.HealthStatusHealthy

	// Check repository component
	repoHealth := h.repository.HealthCheck(checkCtx)
	components["repository"] = repoHealth
	if repoHealth.Status != domain.HealthStatusHealthy {
		overallStatus = h.aggregateStatus(overallStatus, repoHealth.Status)
	}

	// Check cache component
	cacheHealth := h.cache.HealthCheck(checkCtx)
	components["cache"] = cacheHealth
	if cacheHealth.Status != domain.HealthStatusHealthy {
		overallStatus = h.aggregateStatus(overallStatus, cacheHealth.Status)
	}

	// Collect system metrics
	metrics := h.collectSystemMetrics(checkCtx)

	systemHealth := domain.SystemHealth{
		Status:     overallStatus,
		Timestamp:  now,
		Components: components,
		Metrics:    metrics,
		Uptime:     time.Since(h.startTime),
	}

	// Cache the result
	h.lastCheck = now
	h.lastHealth = systemHealth

	return systemHealth
}

// CheckComponent performs a health check on a specific component
func (h *SystemHealthChecker) CheckComponent(ctx context.Context, component string) domain.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch component {
	case "repository":
		return h.repository.HealthCheck(checkCtx)
	case "cache":
		return h.cache.HealthCheck(checkCtx)
	default:
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "Unknown component",
			Timestamp: time.Now(),
			Details: map[string]any{
				"component": component,
				"error":     "Component not found",
			},
		}
	}
}

// aggregateStatus determines the overall status based on component statuses
func (h *SystemHealthChecker) aggregateStatus(current, componentStatus string) string {
	// Priority: unhealthy > degraded > healthy
	statusPriority := map[string]int{
		domain.HealthStatusHealthy:   0,
		domain.HealthStatusDegraded:  1,
		domain.HealthStatusUnhealthy: 2,
	}

	currentPriority := statusPriority[current]
	componentPriority := statusPriority[componentStatus]

	if componentPriority > currentPriority {
		return componentStatus
	}
	return current
}

// collectSystemMetrics gathers system-wide metrics
func (h *SystemHealthChecker) collectSystemMetrics(ctx context.Context) map[string]any {
	metrics := make(map[string]any)

	// Collect repository metrics
	if repoStats := h.repository.GetStats(ctx); repoStats != nil {
		metrics["repository"] = repoStats
	}

	// Collect cache metrics
	cacheStats := h.cache.Stats()
	metrics["cache"] = map[string]any{
		"hits":      cacheStats.Hits,
		"misses":    cacheStats.Misses,
		"size":      cacheStats.Size,
		"max_size":  cacheStats.MaxSize,
		"hit_ratio": cacheStats.HitRatio,
	}

	// Add system-level metrics
	metrics["system"] = map[string]any{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"timestamp":      time.Now(),
	}

	return metrics
}

// IsHealthy returns true if the system is healthy
func (h *SystemHealthChecker) IsHealthy(ctx context.Context) bool {
	health := h.CheckHealth(ctx)
	return health.Status == domain.HealthStatusHealthy
}
