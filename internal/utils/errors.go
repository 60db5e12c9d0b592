package utils

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorCodeValidationError    ErrorCode = "VALIDATION_ERROR"
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeSpawnFailure       ErrorCode = "SPAWN_FAILURE"
	ErrorCodeProcessFailure     ErrorCode = "PROCESS_FAILURE"
	ErrorCodeMetadataParseError ErrorCode = "METADATA_PARSE_ERROR"
	ErrorCodeFetchFailed        ErrorCode = "FETCH_FAILED"
	ErrorCodeTranscodeFailed    ErrorCode = "TRANSCODE_FAILED"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

// AppError is the machine-readable error returned to API clients. Message
// is rendered as the "error" field so clients that only look at "error"
// keep working.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"error"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Body renders the error as a JSON response body.
func (e *AppError) Body(requestID string) map[string]interface{} {
	body := map[string]interface{}{
		"error": e.Message,
		"code":  e.Code,
	}
	if e.Details != "" {
		body["details"] = e.Details
	}
	if requestID != "" {
		body["request_id"] = requestID
	}
	return body
}

func NewError(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func NewErrorWithDetails(code ErrorCode, message string, statusCode int, details string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

// Common error constructors
func NewValidationError(message string) *AppError {
	return NewError(ErrorCodeValidationError, message, http.StatusBadRequest)
}

func NewVideoURLRequiredError() *AppError {
	return NewValidationError("videoUrl required")
}

func NewInvalidBodyError() *AppError {
	return NewValidationError("Invalid request body")
}

func NewInvalidDurationError() *AppError {
	return NewValidationError("duration must be a positive number")
}

func NewPayloadTooLargeError() *AppError {
	return NewError(
		ErrorCodeValidationError,
		"Request body too large",
		http.StatusRequestEntityTooLarge,
	)
}

func NewMissingAuthError() *AppError {
	return NewError(
		ErrorCodeUnauthorized,
		"Missing Authorization header",
		http.StatusUnauthorized,
	)
}

func NewUnauthorizedError() *AppError {
	return NewError(
		ErrorCodeUnauthorized,
		"Invalid API key",
		http.StatusUnauthorized,
	)
}

func NewRateLimitError() *AppError {
	return NewError(
		ErrorCodeRateLimitExceeded,
		"Too many requests",
		http.StatusTooManyRequests,
	)
}

func NewInfoProcessError(code ErrorCode, diagnostics string) *AppError {
	return NewErrorWithDetails(
		code,
		"Failed to get info",
		http.StatusInternalServerError,
		diagnostics,
	)
}

func NewMetadataParseError() *AppError {
	return NewError(
		ErrorCodeMetadataParseError,
		"Parse error",
		http.StatusInternalServerError,
	)
}

func NewFetchFailedError() *AppError {
	return NewError(
		ErrorCodeFetchFailed,
		"yt-dlp failed",
		http.StatusInternalServerError,
	)
}

func NewTranscodeFailedError() *AppError {
	return NewError(
		ErrorCodeTranscodeFailed,
		"ffmpeg failed",
		http.StatusInternalServerError,
	)
}

func NewInternalError() *AppError {
	return NewError(
		ErrorCodeInternalError,
		"An unexpected error occurred",
		http.StatusInternalServerError,
	)
}

// Truncate shortens s to at most max bytes, keeping the tail, which is
// where command-line tools print the reason they failed.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
