package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")

	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	for _, key := range []string{
		"PORT", "SERVER_PORT", "MAX_DURATION", "DEFAULT_DURATION",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "ARCHIVE_ENABLED", "MONGODB_URI",
		"MAX_CONCURRENT_EXTRACTIONS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, 60, cfg.API.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.API.RateLimitWindow)
	assert.Equal(t, int64(100*1024), cfg.API.MaxBodyBytes)
	assert.Equal(t, 180.0, cfg.Extraction.MaxDurationSeconds)
	assert.Equal(t, 180.0, cfg.Extraction.DefaultDurationSeconds)
	assert.Equal(t, "yt-dlp", cfg.Extraction.FetcherPath)
	assert.Equal(t, "ffmpeg", cfg.Extraction.TranscoderPath)
	assert.Equal(t, int64(10*1024*1024), cfg.Extraction.MaxMetadataBytes)
	assert.Zero(t, cfg.Extraction.MaxConcurrent)
	assert.False(t, cfg.S3.Enabled)
	assert.False(t, cfg.MongoDB.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("PORT", "8081")
	t.Setenv("MAX_DURATION", "90")
	t.Setenv("DEFAULT_DURATION", "30.5")
	t.Setenv("FETCH_TIMEOUT", "45s")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MAX_CONCURRENT_EXTRACTIONS", "4")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, 90.0, cfg.Extraction.MaxDurationSeconds)
	assert.Equal(t, 30.5, cfg.Extraction.DefaultDurationSeconds)
	assert.Equal(t, 45*time.Second, cfg.Extraction.FetchTimeout)
	assert.Equal(t, 4, cfg.Extraction.MaxConcurrent)
	assert.True(t, cfg.MongoDB.Enabled())
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-numeric max duration", key: "MAX_DURATION", value: "three minutes"},
		{name: "negative max duration", key: "MAX_DURATION", value: "-5"},
		{name: "bad timeout", key: "TRANSCODE_TIMEOUT", value: "soon"},
		{name: "bad rate limit window", key: "RATE_LIMIT_WINDOW", value: "1 minute"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("API_KEY", "secret")
			t.Setenv(tc.key, tc.value)

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnvArchiveNeedsBucket(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("ARCHIVE_ENABLED", "true")
	t.Setenv("S3_BUCKET_NAME", "")

	_, err := FromEnv()
	assert.Error(t, err)
}
