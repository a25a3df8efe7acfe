package ingress

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthCheck mirrors HealthCheck in the teacher's handler_health.go.
type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]healthCheck `json:"checks"`
}

// handleHealth handles GET /healthz. Only the orchestrator's own
// components (store reachability, worker pool) are checked; external
// providers surface their own degradation through model_health instead of
// flapping this endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]healthCheck)
	status := healthStatusHealthy

	if _, err := s.runs.CountExecuting(ctx); err != nil {
		status = healthStatusUnhealthy
		checks["store"] = healthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["store"] = healthCheck{Status: healthStatusHealthy}
	}

	if s.pool != nil {
		poolHealth := s.pool.Health(ctx)
		if poolHealth != nil && !poolHealth.IsHealthy {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			msg := healthStatusUnhealthy
			if poolHealth.StoreError != "" {
				msg = poolHealth.StoreError
			}
			checks["worker_pool"] = healthCheck{Status: healthStatusDegraded, Message: msg}
		} else {
			checks["worker_pool"] = healthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &healthResponse{Status: status, Checks: checks})
}
