// Package main provides the entry point for the YouTube audio worker service.
// @title YouTube Audio Worker API
// @version 1.0
// @description Fetches remote videos with yt-dlp and returns their metadata or a trimmed MP3 transcoded with ffmpeg.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:3000
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description "Bearer <API_KEY>" or "Bearer <JWT>"

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/denisAlshanov/audioworker/docs" // Import for swagger docs
	"github.com/denisAlshanov/audioworker/internal/api/handlers"
	"github.com/denisAlshanov/audioworker/internal/api/router"
	"github.com/denisAlshanov/audioworker/internal/config"
	"github.com/denisAlshanov/audioworker/internal/database"
	"github.com/denisAlshanov/audioworker/internal/metrics"
	"github.com/denisAlshanov/audioworker/internal/services/artifact"
	"github.com/denisAlshanov/audioworker/internal/services/auth"
	"github.com/denisAlshanov/audioworker/internal/services/extractor"
	"github.com/denisAlshanov/audioworker/internal/services/fetcher"
	"github.com/denisAlshanov/audioworker/internal/services/process"
	"github.com/denisAlshanov/audioworker/internal/services/storage"
	"github.com/denisAlshanov/audioworker/internal/services/transcoder"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting YouTube audio worker service")

	m := metrics.New(prometheus.DefaultRegisterer)

	// Scratch space for pipeline executions
	artifacts, err := artifact.NewManager(cfg.Extraction.TempDir, artifact.WithObserver(m))
	if err != nil {
		logger.Fatalf("Failed to initialize artifact manager: %v", err)
	}
	if removed, err := artifacts.Sweep(cfg.Extraction.StaleArtifactAge); err != nil {
		logger.Warnf("Failed to sweep stale artifacts: %v", err)
	} else if removed > 0 {
		logger.Infof("Removed %d stale artifacts from %s", removed, artifacts.Dir())
	}

	// External tools
	runner := process.NewExecRunner(cfg.Extraction.MaxDiagnosticBytes)
	ytdlp := fetcher.NewClient(cfg.Extraction.FetcherPath, runner, fetcher.Options{
		MaxMetadataBytes: cfg.Extraction.MaxMetadataBytes,
		MetadataTimeout:  cfg.Extraction.MetadataTimeout,
		DownloadTimeout:  cfg.Extraction.FetchTimeout,
	})
	ffmpeg := transcoder.NewFFmpeg(cfg.Extraction.TranscoderPath, runner, transcoder.EncodeOpts{
		Codec:   cfg.Extraction.AudioCodec,
		Bitrate: cfg.Extraction.AudioBitrate,
		Timeout: cfg.Extraction.TranscodeTimeout,
	})

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	if err := ytdlp.VerifyInstalled(startupCtx); err != nil {
		logger.Warnf("yt-dlp is not usable, extraction requests will fail: %v", err)
	}
	if err := ffmpeg.VerifyInstalled(startupCtx); err != nil {
		logger.Warnf("ffmpeg is not usable, extraction requests will fail: %v", err)
	}
	cancelStartup()

	checks := []handlers.Check{
		{Name: "yt-dlp", Fn: ytdlp.VerifyInstalled},
		{Name: "ffmpeg", Fn: ffmpeg.VerifyInstalled},
	}
	pipelineOpts := []extractor.Option{
		extractor.WithObserver(m),
		extractor.WithConcurrencyLimit(cfg.Extraction.MaxConcurrent),
	}

	// Optional S3 archive
	archive, err := storage.NewArchiveFromConfig(&cfg.S3)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	if archive != nil {
		pipelineOpts = append(pipelineOpts, extractor.WithArchiver(archive))
		checks = append(checks, handlers.Check{Name: "s3", Fn: archive.Ping})
		logger.Infof("Archiving audio to %s", archive.Location())
	}

	// Optional run history
	var db *database.MongoDB
	var runsHandler *handlers.RunsHandler
	if cfg.MongoDB.Enabled() {
		db, err = database.NewMongoDB(&cfg.MongoDB)
		if err != nil {
			logger.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		pipelineOpts = append(pipelineOpts, extractor.WithRecorder(db))
		checks = append(checks, handlers.Check{Name: "mongodb", Fn: db.Ping})
		runsHandler = handlers.NewRunsHandler(db)
	}

	pipeline := extractor.New(artifacts, ytdlp, ffmpeg, extractor.Config{
		DefaultDurationSeconds: cfg.Extraction.DefaultDurationSeconds,
		MaxDurationSeconds:     cfg.Extraction.MaxDurationSeconds,
	}, pipelineOpts...)

	// Initialize handlers
	jwtService := auth.NewJWTService(auth.JWTConfig{SecretKey: cfg.API.JWTSecret})
	r := router.NewRouter(cfg, router.Handlers{
		Extract: handlers.NewExtractHandler(ytdlp, pipeline, cfg.Extraction.MaxDiagnosticBytes),
		Health:  handlers.NewHealthHandler(checks...),
		Runs:    runsHandler,
	}, jwtService, m, prometheus.DefaultGatherer)

	srv := &http.Server{
		Addr:              r.Addr(),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// In-flight extractions finish and release their artifacts here
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Let finished streams write their run records
	if err := pipeline.Drain(ctx); err != nil {
		logger.Warnf("Gave up waiting for run records: %v", err)
	}

	// Close database connection
	if db != nil {
		if err := db.Close(ctx); err != nil {
			logger.Errorf("Failed to close database connection: %v", err)
		}
	}

	if live := artifacts.Live(); live > 0 {
		logger.Warnf("%d artifacts still live at shutdown", live)
	}

	logger.Info("Server shutdown complete")
}
