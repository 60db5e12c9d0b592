package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisAlshanov/audioworker/internal/api/middleware"
	"github.com/denisAlshanov/audioworker/internal/models"
	"github.com/denisAlshanov/audioworker/internal/services/artifact"
	"github.com/denisAlshanov/audioworker/internal/services/extractor"
	"github.com/denisAlshanov/audioworker/internal/services/fetcher"
	"github.com/denisAlshanov/audioworker/internal/services/process"
	"github.com/denisAlshanov/audioworker/internal/services/process/processtest"
	"github.com/denisAlshanov/audioworker/internal/services/transcoder"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

const mp3Payload = "ID3-handler-test-audio"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type testServer struct {
	engine  *gin.Engine
	runner  *processtest.Runner
	manager *artifact.Manager
	dir     string
}

// workingTools writes the files a real yt-dlp and ffmpeg would produce.
func workingTools(ctx context.Context, cmd process.Command) (*process.Result, error) {
	switch cmd.Name {
	case "yt-dlp":
		if out := processtest.ArgAfter(cmd, "-o"); out != "" {
			if err := os.WriteFile(out, []byte("webm"), 0o600); err != nil {
				return nil, err
			}
			return processtest.Success(""), nil
		}
		return processtest.Success(`{"title":"Clip","duration":42.5,"uploader":"Someone","view_count":7,"upload_date":"20240101"}`), nil
	case "ffmpeg":
		if err := os.WriteFile(cmd.Args[len(cmd.Args)-1], []byte(mp3Payload), 0o600); err != nil {
			return nil, err
		}
		return processtest.Success(""), nil
	}
	return nil, &process.SpawnError{Name: cmd.Name, Err: errors.New("unknown tool")}
}

func newTestServer(t *testing.T, handler processtest.HandlerFunc) *testServer {
	t.Helper()

	dir := t.TempDir()
	mgr, err := artifact.NewManager(dir)
	require.NoError(t, err)

	runner := processtest.NewRunner(handler)
	client := fetcher.NewClient("yt-dlp", runner, fetcher.Options{})
	pipeline := extractor.New(mgr, client, transcoder.NewFFmpeg("ffmpeg", runner, transcoder.EncodeOpts{}), extractor.Config{
		DefaultDurationSeconds: 60,
		MaxDurationSeconds:     180,
	})

	h := NewExtractHandler(client, pipeline, 64)

	engine := gin.New()
	engine.Use(middleware.CorrelationIDMiddleware())
	engine.Use(middleware.BodyLimit(1024))
	engine.POST("/video-info", h.VideoInfo)
	engine.POST("/extract-audio", h.ExtractAudio)

	return &testServer{engine: engine, runner: runner, manager: mgr, dir: dir}
}

func (s *testServer) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) leftovers(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	return entries
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestVideoInfo(t *testing.T) {
	s := newTestServer(t, workingTools)

	w := s.post("/video-info", `{"videoUrl":"https://valid.example/watch?v=abc"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var meta models.VideoMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "Clip", meta.Title)
	require.NotNil(t, meta.Duration)
	assert.Equal(t, 42.5, *meta.Duration)
	assert.Equal(t, "Someone", meta.Uploader)
	require.NotNil(t, meta.ViewCount)
	assert.Equal(t, int64(7), *meta.ViewCount)
	assert.Equal(t, "20240101", meta.UploadDate)
}

func TestMissingVideoURL(t *testing.T) {
	bodies := []string{``, `{}`, `{"videoUrl":""}`, `{"videoUrl":"   "}`}

	for _, path := range []string{"/video-info", "/extract-audio"} {
		for _, body := range bodies {
			t.Run(path+" "+body, func(t *testing.T) {
				s := newTestServer(t, workingTools)

				w := s.post(path, body)
				assert.Equal(t, http.StatusBadRequest, w.Code)

				resp := decodeBody(t, w)
				assert.Equal(t, "videoUrl required", resp["error"])
				assert.Equal(t, "VALIDATION_ERROR", resp["code"])
				assert.NotEmpty(t, resp["request_id"])

				assert.Empty(t, s.runner.Calls())
				assert.Empty(t, s.leftovers(t))
			})
		}
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, workingTools)

	w := s.post("/video-info", `{"videoUrl":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", decodeBody(t, w)["error"])
	assert.Empty(t, s.runner.Calls())
}

func TestBodyTooLarge(t *testing.T) {
	s := newTestServer(t, workingTools)

	w := s.post("/extract-audio", `{"videoUrl":"https://valid.example/`+strings.Repeat("a", 2048)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, s.runner.Calls())
}

func TestVideoInfoProcessFailure(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return processtest.Failure(cmd.Name, 1, "ERROR: [generic] Unsupported URL: https://example.com "+strings.Repeat("x", 200))
	})

	w := s.post("/video-info", `{"videoUrl":"https://example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "Failed to get info", resp["error"])
	assert.Equal(t, "PROCESS_FAILURE", resp["code"])
	details, ok := resp["details"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, details)
	assert.LessOrEqual(t, len(details), 64+len("..."))
	assert.True(t, strings.HasSuffix(details, "xxxx"))
}

func TestVideoInfoSpawnFailure(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return nil, &process.SpawnError{Name: cmd.Name, Err: errors.New("executable file not found in $PATH")}
	})

	w := s.post("/video-info", `{"videoUrl":"https://example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "Failed to get info", resp["error"])
	assert.Equal(t, "SPAWN_FAILURE", resp["code"])
	assert.NotEmpty(t, resp["details"])
}

func TestVideoInfoParseError(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return processtest.Success(`{"title": "trunc`), nil
	})

	w := s.post("/video-info", `{"videoUrl":"https://example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "Parse error", resp["error"])
	assert.Equal(t, "METADATA_PARSE_ERROR", resp["code"])
	assert.NotContains(t, resp, "details")
}

func TestExtractAudio(t *testing.T) {
	s := newTestServer(t, workingTools)

	w := s.post("/extract-audio", `{"videoUrl":"https://valid.example/watch?v=abc","duration":9999}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "22", w.Header().Get("Content-Length"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audio.mp3")
	assert.Equal(t, mp3Payload, w.Body.String())

	ffmpeg := s.runner.CallsTo("ffmpeg")
	require.Len(t, ffmpeg, 1)
	assert.Equal(t, "180", processtest.ArgAfter(ffmpeg[0], "-t"))

	assert.Empty(t, s.leftovers(t))
	assert.Zero(t, s.manager.Live())
}

func TestExtractAudioDefaultDuration(t *testing.T) {
	for _, body := range []string{
		`{"videoUrl":"https://valid.example/watch?v=abc"}`,
		`{"videoUrl":"https://valid.example/watch?v=abc","duration":null}`,
		`{"videoUrl":"https://valid.example/watch?v=abc","duration":0}`,
		`{"videoUrl":"https://valid.example/watch?v=abc","duration":""}`,
	} {
		s := newTestServer(t, workingTools)

		w := s.post("/extract-audio", body)
		require.Equal(t, http.StatusOK, w.Code, body)
		assert.Equal(t, "60", processtest.ArgAfter(s.runner.CallsTo("ffmpeg")[0], "-t"), body)
	}
}

func TestExtractAudioNumericStringDuration(t *testing.T) {
	s := newTestServer(t, workingTools)

	w := s.post("/extract-audio", `{"videoUrl":"https://valid.example/watch?v=abc","duration":"30"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30", processtest.ArgAfter(s.runner.CallsTo("ffmpeg")[0], "-t"))
}

func TestExtractAudioInvalidDuration(t *testing.T) {
	for _, body := range []string{
		`{"videoUrl":"https://valid.example/watch?v=abc","duration":-5}`,
		`{"videoUrl":"https://valid.example/watch?v=abc","duration":"-5"}`,
		`{"videoUrl":"https://valid.example/watch?v=abc","duration":"ten"}`,
		`{"videoUrl":"https://valid.example/watch?v=abc","duration":true}`,
	} {
		s := newTestServer(t, workingTools)

		w := s.post("/extract-audio", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "duration must be a positive number", decodeBody(t, w)["error"], body)
		assert.Empty(t, s.runner.Calls(), body)
		assert.Empty(t, s.leftovers(t), body)
	}
}

func TestExtractAudioFetchFailure(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		if cmd.Name == "yt-dlp" {
			return processtest.Failure(cmd.Name, 1, "ERROR: Video unavailable")
		}
		return workingTools(ctx, cmd)
	})

	w := s.post("/extract-audio", `{"videoUrl":"https://example.com/gone"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "yt-dlp failed", resp["error"])
	assert.Equal(t, "FETCH_FAILED", resp["code"])
	assert.NotContains(t, resp, "details")

	assert.Empty(t, s.runner.CallsTo("ffmpeg"))
	assert.Empty(t, s.leftovers(t))
}

func TestExtractAudioTranscodeFailure(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		if cmd.Name == "ffmpeg" {
			return processtest.Failure(cmd.Name, 1, "Invalid data found when processing input")
		}
		return workingTools(ctx, cmd)
	})

	w := s.post("/extract-audio", `{"videoUrl":"https://valid.example/watch?v=abc"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "ffmpeg failed", resp["error"])
	assert.Equal(t, "TRANSCODE_FAILED", resp["code"])
	assert.Empty(t, s.leftovers(t))
}

type fakeHistory struct {
	runs  []models.ExtractionRun
	err   error
	limit int64
}

func (f *fakeHistory) RecentRuns(ctx context.Context, limit int64) ([]models.ExtractionRun, error) {
	f.limit = limit
	return f.runs, f.err
}

func TestListRuns(t *testing.T) {
	history := &fakeHistory{runs: []models.ExtractionRun{
		{RunID: "run-2", State: models.RunStateDone},
		{RunID: "run-1", State: models.RunStateFailed, FailedStage: "fetch"},
	}}
	engine := gin.New()
	engine.GET("/runs", NewRunsHandler(history).ListRuns)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(defaultRunsLimit), history.limit)

	resp := decodeBody(t, w)
	assert.Equal(t, float64(2), resp["count"])

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), history.limit)

	for _, bad := range []string{"0", "201", "abc"} {
		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestListRunsEmptyAndFailing(t *testing.T) {
	engine := gin.New()
	engine.GET("/empty", NewRunsHandler(&fakeHistory{}).ListRuns)
	engine.GET("/broken", NewRunsHandler(&fakeHistory{err: errors.New("connection refused")}).ListRuns)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/empty", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[],"count":0}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealth(t *testing.T) {
	engine := gin.New()
	h := NewHealthHandler()
	engine.GET("/health", h.Health)
	engine.GET("/live", h.Liveness)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"youtube-audio-worker"}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("ffmpeg: not found") }

	engine := gin.New()
	engine.GET("/ready", NewHealthHandler(Check{Name: "yt-dlp", Fn: ok}, Check{Name: "ffmpeg", Fn: ok}).Readiness)
	engine.GET("/degraded", NewHealthHandler(Check{Name: "yt-dlp", Fn: ok}, Check{Name: "ffmpeg", Fn: down}).Readiness)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ReadinessResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&resp))
	assert.True(t, resp.Ready)
	assert.Len(t, resp.Checks, 2)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/degraded", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
	assert.True(t, resp.Checks["yt-dlp"].Ready)
	assert.False(t, resp.Checks["ffmpeg"].Ready)
	assert.Equal(t, "ffmpeg: not found", resp.Checks["ffmpeg"].Error)
}
