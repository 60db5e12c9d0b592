package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/audioworker/internal/models"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

const serviceName = "youtube-audio-worker"

// Check is one named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type HealthHandler struct {
	checks []Check
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{
		checks: checks,
	}
}

// Health godoc
// @Summary Health check endpoint
// @Description Liveness only; does not touch external tools
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Service: serviceName,
	})
}

// Readiness godoc
// @Summary Readiness check endpoint
// @Description Check that the fetcher and transcoder can run and optional backends are reachable
// @Tags health
// @Produce json
// @Success 200 {object} models.ReadinessResponse
// @Success 503 {object} models.ReadinessResponse
// @Router /ready [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx := c.Request.Context()

	response := models.ReadinessResponse{
		Ready:     true,
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]models.ServiceCheck, len(h.checks)),
	}

	for _, check := range h.checks {
		result := h.runCheck(ctx, check)
		if !result.Ready {
			response.Ready = false
		}
		response.Checks[check.Name] = result
	}

	if response.Ready {
		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

// Liveness godoc
// @Summary Liveness check endpoint
// @Description Check if the service is alive
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /live [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	// Simple liveness check - if this endpoint responds, the service is alive
	c.JSON(http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *HealthHandler) runCheck(ctx context.Context, check Check) models.ServiceCheck {
	start := time.Now()

	// Create a timeout context for the health check
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := check.Fn(checkCtx)
	responseTime := time.Since(start).String()

	if err != nil {
		utils.LogError(ctx, "Readiness check failed", err, utils.Fields{"check": check.Name})
		return models.ServiceCheck{
			Ready:        false,
			ResponseTime: responseTime,
			Error:        err.Error(),
		}
	}

	return models.ServiceCheck{
		Ready:        true,
		ResponseTime: responseTime,
	}
}
