package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/audioworker/internal/models"
	"github.com/denisAlshanov/audioworker/internal/services/extractor"
	"github.com/denisAlshanov/audioworker/internal/services/fetcher"
	"github.com/denisAlshanov/audioworker/internal/services/process"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

// MetadataFetcher is the part of the fetcher the handlers need.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, sourceURL string) (*models.VideoMetadata, error)
}

// AudioExtractor runs the extraction pipeline.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, req models.ExtractionRequest) (*extractor.AudioStream, error)
}

type ExtractHandler struct {
	fetcher        MetadataFetcher
	extractor      AudioExtractor
	maxDiagnostics int
}

// NewExtractHandler creates the /video-info and /extract-audio handlers.
// maxDiagnostics bounds the tool output echoed back in error details.
func NewExtractHandler(fetcher MetadataFetcher, extractor AudioExtractor, maxDiagnostics int) *ExtractHandler {
	return &ExtractHandler{
		fetcher:        fetcher,
		extractor:      extractor,
		maxDiagnostics: maxDiagnostics,
	}
}

// VideoInfo godoc
// @Summary Get video metadata
// @Description Run the fetcher in metadata-only mode and return a projection of its output
// @Tags extraction
// @Accept json
// @Produce json
// @Param request body models.VideoInfoRequest true "Video URL"
// @Success 200 {object} models.VideoMetadata
// @Failure 400 {object} utils.AppError
// @Failure 401 {object} utils.AppError
// @Failure 429 {object} utils.AppError
// @Failure 500 {object} utils.AppError
// @Router /video-info [post]
// @Security BearerAuth
func (h *ExtractHandler) VideoInfo(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.VideoInfoRequest
	if appErr := bindJSON(c, &req); appErr != nil {
		errorResponse(c, appErr)
		return
	}

	sourceURL := strings.TrimSpace(req.VideoURL)
	if sourceURL == "" {
		errorResponse(c, utils.NewVideoURLRequiredError())
		return
	}

	meta, err := h.fetcher.FetchMetadata(ctx, sourceURL)
	if err != nil {
		utils.LogError(ctx, "Failed to get video info", err, utils.Fields{"source_url": sourceURL})
		errorResponse(c, h.infoError(err))
		return
	}

	c.JSON(http.StatusOK, meta)
}

// ExtractAudio godoc
// @Summary Extract audio as MP3
// @Description Download the best audio stream, transcode it to MP3 capped at the requested duration and stream it back
// @Tags extraction
// @Accept json
// @Produce audio/mpeg
// @Param request body models.ExtractAudioRequest true "Video URL and optional duration in seconds"
// @Success 200 {file} binary "MP3 audio"
// @Failure 400 {object} utils.AppError
// @Failure 401 {object} utils.AppError
// @Failure 429 {object} utils.AppError
// @Failure 500 {object} utils.AppError
// @Router /extract-audio [post]
// @Security BearerAuth
func (h *ExtractHandler) ExtractAudio(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.ExtractAudioRequest
	if appErr := bindJSON(c, &req); appErr != nil {
		errorResponse(c, appErr)
		return
	}

	sourceURL := strings.TrimSpace(req.VideoURL)
	if sourceURL == "" {
		errorResponse(c, utils.NewVideoURLRequiredError())
		return
	}

	stream, err := h.extractor.ExtractAudio(ctx, models.ExtractionRequest{
		SourceURL:         sourceURL,
		RequestedDuration: req.Duration,
	})
	if err != nil {
		errorResponse(c, extractionError(err))
		return
	}
	defer stream.Close()

	c.Header("Content-Type", stream.ContentType())
	c.Header("Content-Length", strconv.FormatInt(stream.Size(), 10))
	c.Header("Content-Disposition", `attachment; filename="audio.mp3"`)
	c.Status(http.StatusOK)

	written, err := io.Copy(c.Writer, stream)
	if err != nil {
		utils.LogWarn(ctx, "Audio delivery interrupted", utils.Fields{
			"bytes_written": written,
			"error":         err.Error(),
		})
	}
}

// infoError maps a metadata failure to its API error. Diagnostics are
// echoed back, truncated.
func (h *ExtractHandler) infoError(err error) *utils.AppError {
	var parseErr *fetcher.MetadataParseError
	var spawnErr *process.SpawnError
	var procErr *process.ProcessError

	switch {
	case errors.As(err, &parseErr):
		return utils.NewMetadataParseError()
	case errors.As(err, &spawnErr):
		return utils.NewInfoProcessError(utils.ErrorCodeSpawnFailure, utils.Truncate(spawnErr.Error(), h.maxDiagnostics))
	case errors.As(err, &procErr):
		details := procErr.Diagnostics
		if details == "" {
			details = procErr.Error()
		}
		return utils.NewInfoProcessError(utils.ErrorCodeProcessFailure, utils.Truncate(details, h.maxDiagnostics))
	default:
		return utils.NewInternalError()
	}
}

// extractionError maps a pipeline failure to its API error. Tool output is
// logged by the pipeline and never returned.
func extractionError(err error) *utils.AppError {
	if errors.Is(err, extractor.ErrInvalidRequest) {
		return utils.NewInvalidDurationError()
	}

	switch extractor.FailedStage(err) {
	case extractor.StageFetch:
		return utils.NewFetchFailedError()
	case extractor.StageTranscode:
		return utils.NewTranscodeFailedError()
	default:
		return utils.NewInternalError()
	}
}

// bindJSON decodes the body into obj. An empty body decodes as {} so the
// caller's own "required" checks produce the error.
func bindJSON(c *gin.Context, obj interface{}) *utils.AppError {
	err := c.ShouldBindJSON(obj)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return utils.NewPayloadTooLargeError()
	}
	if errors.Is(err, models.ErrInvalidDuration) {
		return utils.NewInvalidDurationError()
	}

	utils.LogDebug(c.Request.Context(), "Rejected request body", utils.Fields{"error": err.Error()})
	return utils.NewInvalidBodyError()
}

func errorResponse(c *gin.Context, err *utils.AppError) {
	c.JSON(err.StatusCode, err.Body(c.GetString("request_id")))
}
