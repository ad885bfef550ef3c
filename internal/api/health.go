package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus is the status of a health check.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// HealthCheck pings one dependency. Critical failures make the service
// unhealthy; the others only degrade it.
type HealthCheck struct {
	Ping     func(ctx context.Context) error
	Critical bool
}

func runCheck(ctx context.Context, name string, check HealthCheck) CheckResult {
	start := time.Now()
	err := check.Ping(ctx)
	latency := time.Since(start).String()
	if err == nil {
		return CheckResult{Status: HealthStatusHealthy, Message: name + " OK", Latency: latency}
	}
	status := HealthStatusDegraded
	if check.Critical {
		status = HealthStatusUnhealthy
	}
	return CheckResult{Status: status, Message: err.Error(), Latency: latency}
}

func healthHandler(service, version string, started time.Time, checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{
			Status:  HealthStatusHealthy,
			Service: service,
			Version: version,
			Uptime:  time.Since(started).Truncate(time.Second).String(),
		}
		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			defer cancel()
			resp.Checks = make(map[string]CheckResult, len(checks))
			for name, check := range checks {
				result := runCheck(ctx, name, check)
				resp.Checks[name] = result
				switch {
				case result.Status == HealthStatusUnhealthy:
					resp.Status = HealthStatusUnhealthy
				case result.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
					resp.Status = HealthStatusDegraded
				}
			}
		}

		status := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}
