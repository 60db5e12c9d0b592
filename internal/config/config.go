package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	API        APIConfig
	Extraction ExtractionConfig
	S3         S3Config
	MongoDB    MongoDBConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

type APIConfig struct {
	APIKey            string
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64
}

// ExtractionConfig holds everything the fetch/transcode pipeline reads.
// Durations in seconds are float64 because yt-dlp and ffmpeg accept
// fractional seconds.
type ExtractionConfig struct {
	MaxDurationSeconds     float64
	DefaultDurationSeconds float64
	FetcherPath            string
	TranscoderPath         string
	TempDir                string
	MetadataTimeout        time.Duration
	FetchTimeout           time.Duration
	TranscodeTimeout       time.Duration
	MaxMetadataBytes       int64
	MaxDiagnosticBytes     int
	AudioCodec             string
	AudioBitrate           string
	StaleArtifactAge       time.Duration
	MaxConcurrent          int
}

type S3Config struct {
	Enabled         bool
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	EndpointURL     string
	KeyPrefix       string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Enabled reports whether run history should be persisted.
func (c MongoDBConfig) Enabled() bool {
	return c.URI != ""
}

var ErrMissingAPIKey = errors.New("missing API_KEY in environment: copy .env.example to .env and set API_KEY")

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	return FromEnv()
}

// FromEnv builds the configuration from the current process environment
// without touching .env files.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("SERVER_PORT", getEnv("PORT", "3000"))
	cfg.Server.Host = getEnv("SERVER_HOST", "0.0.0.0")
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Server.ShutdownTimeout = shutdownTimeout

	// API configuration
	cfg.API.APIKey = getEnv("API_KEY", "")
	if cfg.API.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	cfg.API.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.API.RateLimitRequests = getEnvInt("RATE_LIMIT_REQUESTS", 60)
	rateLimitWindow, err := getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.API.RateLimitWindow = rateLimitWindow
	cfg.API.MaxBodyBytes = getEnvInt64("MAX_BODY_BYTES", 100*1024)

	// Extraction configuration
	ext := &cfg.Extraction
	ext.MaxDurationSeconds, err = getEnvFloat("MAX_DURATION", 180)
	if err != nil {
		return nil, err
	}
	if ext.MaxDurationSeconds < 0 {
		return nil, fmt.Errorf("invalid MAX_DURATION: must not be negative")
	}
	ext.DefaultDurationSeconds, err = getEnvFloat("DEFAULT_DURATION", ext.MaxDurationSeconds)
	if err != nil {
		return nil, err
	}
	if ext.DefaultDurationSeconds < 0 {
		return nil, fmt.Errorf("invalid DEFAULT_DURATION: must not be negative")
	}
	ext.FetcherPath = getEnv("YTDLP_PATH", "yt-dlp")
	ext.TranscoderPath = getEnv("FFMPEG_PATH", "ffmpeg")
	ext.TempDir = getEnv("TEMP_DIR", "")
	if ext.MetadataTimeout, err = getEnvDuration("METADATA_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if ext.FetchTimeout, err = getEnvDuration("FETCH_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if ext.TranscodeTimeout, err = getEnvDuration("TRANSCODE_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if ext.StaleArtifactAge, err = getEnvDuration("STALE_ARTIFACT_AGE", time.Hour); err != nil {
		return nil, err
	}
	ext.MaxMetadataBytes = getEnvInt64("MAX_METADATA_BYTES", 10*1024*1024)
	ext.MaxDiagnosticBytes = getEnvInt("MAX_DIAGNOSTIC_BYTES", 2048)
	ext.AudioCodec = getEnv("AUDIO_CODEC", "libmp3lame")
	ext.AudioBitrate = getEnv("AUDIO_BITRATE", "192k")
	ext.MaxConcurrent = getEnvInt("MAX_CONCURRENT_EXTRACTIONS", 0)

	// S3 archive configuration (optional)
	cfg.S3.Enabled = getEnvBool("ARCHIVE_ENABLED", false)
	cfg.S3.Region = getEnv("AWS_REGION", "us-east-1")
	cfg.S3.BucketName = getEnv("S3_BUCKET_NAME", "")
	cfg.S3.EndpointURL = getEnv("AWS_ENDPOINT_URL", "") // Optional for LocalStack
	cfg.S3.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.S3.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.S3.KeyPrefix = getEnv("S3_KEY_PREFIX", "audio")
	if cfg.S3.Enabled && cfg.S3.BucketName == "" {
		return nil, fmt.Errorf("ARCHIVE_ENABLED is set but S3_BUCKET_NAME is empty")
	}

	// MongoDB run history configuration (optional)
	cfg.MongoDB.URI = getEnv("MONGODB_URI", "")
	cfg.MongoDB.Database = getEnv("MONGODB_DATABASE", "audioworker")
	if cfg.MongoDB.Timeout, err = getEnvDuration("MONGODB_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s: %q is not a number", key, value)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
