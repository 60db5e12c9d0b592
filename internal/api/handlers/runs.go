package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/audioworker/internal/models"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// RunHistory reads recorded pipeline executions.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int64) ([]models.ExtractionRun, error)
}

type RunsHandler struct {
	history RunHistory
}

func NewRunsHandler(history RunHistory) *RunsHandler {
	return &RunsHandler{
		history: history,
	}
}

// ListRuns godoc
// @Summary List recent extractions
// @Description Return the most recent pipeline executions, newest first
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs (1-200)" default(20)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.AppError
// @Failure 401 {object} utils.AppError
// @Failure 500 {object} utils.AppError
// @Router /runs [get]
// @Security BearerAuth
func (h *RunsHandler) ListRuns(c *gin.Context) {
	ctx := c.Request.Context()

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			errorResponse(c, utils.NewValidationError("limit must be between 1 and 200"))
			return
		}
		limit = n
	}

	runs, err := h.history.RecentRuns(ctx, int64(limit))
	if err != nil {
		utils.LogError(ctx, "Failed to list runs", err)
		errorResponse(c, utils.NewInternalError())
		return
	}
	if runs == nil {
		runs = []models.ExtractionRun{}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}
