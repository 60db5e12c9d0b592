package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned when a duration is neither a number nor a
// numeric string.
var ErrInvalidDuration = errors.New("duration must be a positive number")

// VideoInfoRequest is the body of POST /video-info.
type VideoInfoRequest struct {
	VideoURL string `json:"videoUrl" example:"https://www.youtube.com/watch?v=dQw4w9WgXcQ"`
}

// ExtractAudioRequest is the body of POST /extract-audio. Duration is in
// seconds; null or 0 selects the configured default.
type ExtractAudioRequest struct {
	VideoURL string   `json:"videoUrl" example:"https://www.youtube.com/watch?v=dQw4w9WgXcQ"`
	Duration *float64 `json:"duration,omitempty" example:"60"`
}

// UnmarshalJSON accepts duration as a JSON number or as a string holding
// one. An empty string counts as unset.
func (r *ExtractAudioRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		VideoURL string          `json:"videoUrl"`
		Duration json.RawMessage `json:"duration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	duration, err := parseSeconds(raw.Duration)
	if err != nil {
		return err
	}

	r.VideoURL = raw.VideoURL
	r.Duration = duration
	return nil
}

func parseSeconds(raw json.RawMessage) (*float64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, nil
	}

	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, err)
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return nil, nil
		}
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	return &v, nil
}

// ExtractionRequest is a validated extraction request. It is not mutated
// after construction.
type ExtractionRequest struct {
	SourceURL         string
	RequestedDuration *float64
}

// VideoMetadata is the projection of yt-dlp's --dump-json output returned
// to clients. Duration and ViewCount stay nil when yt-dlp reports null.
type VideoMetadata struct {
	Title      string   `json:"title"`
	Duration   *float64 `json:"duration"`
	Uploader   string   `json:"uploader"`
	ViewCount  *int64   `json:"viewCount"`
	UploadDate string   `json:"uploadDate"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type ReadinessResponse struct {
	Ready     bool                    `json:"ready"`
	Timestamp string                  `json:"timestamp"`
	Checks    map[string]ServiceCheck `json:"checks"`
}

type ServiceCheck struct {
	Ready        bool   `json:"ready"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RunState is the state of one pipeline execution.
type RunState string

const (
	RunStateInit         RunState = "init"
	RunStateFetching     RunState = "fetching"
	RunStateTranscoding  RunState = "transcoding"
	RunStateStreaming    RunState = "streaming"
	RunStateDone         RunState = "done"
	RunStateErrorCleanup RunState = "error_cleanup"
	RunStateFailed       RunState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateFailed
}

// ExtractionRun is the history record written once a pipeline execution
// reaches a terminal state.
type ExtractionRun struct {
	RunID             string             `json:"run_id" bson:"run_id"`
	RequestID         string             `json:"request_id,omitempty" bson:"request_id,omitempty"`
	SourceURL         string             `json:"source_url" bson:"source_url"`
	RequestedDuration *float64           `json:"requested_duration,omitempty" bson:"requested_duration,omitempty"`
	EffectiveDuration float64            `json:"effective_duration" bson:"effective_duration"`
	State             RunState           `json:"state" bson:"state"`
	FailedStage       string             `json:"failed_stage,omitempty" bson:"failed_stage,omitempty"`
	ErrorMessage      *string            `json:"error_message,omitempty" bson:"error_message,omitempty"`
	StageDurations    map[string]float64 `json:"stage_durations" bson:"stage_durations"`
	BytesStreamed     int64              `json:"bytes_streamed" bson:"bytes_streamed"`
	ArchiveKey        string             `json:"archive_key,omitempty" bson:"archive_key,omitempty"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	FinishedAt        time.Time          `json:"finished_at" bson:"finished_at"`
}
