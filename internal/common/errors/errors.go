// Package errors provides standardized error handling for the ad generation API.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Auth errors
	ErrCodeAuthRequired       ErrorCode = "AUTH_REQUIRED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeDuplicateUsername  ErrorCode = "DUPLICATE_USERNAME"
	ErrCodeSessionExpired     ErrorCode = "SESSION_EXPIRED"

	// Request errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	ErrCodeRequestTimeout   ErrorCode = "REQUEST_TIMEOUT"

	// Pipeline errors
	ErrCodePromptGenerationFailed ErrorCode = "PROMPT_GENERATION_FAILED"
	ErrCodeSceneRenderFailed      ErrorCode = "SCENE_RENDER_FAILED"
	ErrCodeRenderRateLimited      ErrorCode = "RENDER_RATE_LIMITED"
	ErrCodeNoScenesToMerge        ErrorCode = "NO_SCENES_TO_MERGE"
	ErrCodeScriptGenerationFailed ErrorCode = "SCRIPT_GENERATION_FAILED"
	ErrCodeSpeechSynthesisFailed  ErrorCode = "SPEECH_SYNTHESIS_FAILED"
	ErrCodeTranscriptionFailed    ErrorCode = "TRANSCRIPTION_FAILED"
	ErrCodeMediaToolFailed        ErrorCode = "MEDIA_TOOL_FAILED"

	// Infrastructure errors
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSessionStoreFailed       ErrorCode = "SESSION_STORE_FAILED"

	// Fallback for errors nobody classified
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewAuthRequiredError creates a non-retryable missing-session error.
func NewAuthRequiredError() *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthRequired,
		Message:   "Authentication required",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidCredentialsError creates a non-retryable login failure error.
func NewInvalidCredentialsError() *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidCredentials,
		Message:   "Invalid username or password",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateUsernameError creates a non-retryable signup conflict error.
func NewDuplicateUsernameError(username string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateUsername,
		Message:   "Username already exists",
		Details:   fmt.Sprintf("username: %s", username),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionExpiredError creates a non-retryable expired-session error.
func NewSessionExpiredError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionExpired,
		Message:   "Session has expired",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable request validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFileNotFoundError creates a non-retryable missing-file error.
func NewFileNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeFileNotFound,
		Message:   "File not found",
		Details:   fmt.Sprintf("file: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRequestTimeoutError creates a retryable request timeout error.
func NewRequestTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRequestTimeout,
		Message:   "Request exceeded time budget",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPromptGenerationFailedError creates a retryable prompt generation error.
func NewPromptGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePromptGenerationFailed,
		Message:   "Scene prompt generation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSceneRenderFailedError creates a retryable scene render error.
func NewSceneRenderFailedError(scene string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSceneRenderFailed,
		Message:   "Scene video rendering failed",
		Details:   fmt.Sprintf("scene: %s, error: %s", scene, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRenderRateLimitedError creates a retryable rate limit error. Callers are
// expected to rotate the API key before retrying.
func NewRenderRateLimitedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRenderRateLimited,
		Message:   "Render API rate limit hit",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoScenesToMergeError creates a non-retryable empty-merge error.
func NewNoScenesToMergeError() *StandardError {
	return &StandardError{
		Code:      ErrCodeNoScenesToMerge,
		Message:   "No scene videos available to merge",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewScriptGenerationFailedError creates a retryable voiceover script error.
func NewScriptGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScriptGenerationFailed,
		Message:   "Voiceover script generation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSpeechSynthesisFailedError creates a retryable TTS error.
func NewSpeechSynthesisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSpeechSynthesisFailed,
		Message:   "Speech synthesis failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTranscriptionFailedError creates a retryable transcription error.
func NewTranscriptionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTranscriptionFailed,
		Message:   "Audio transcription failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMediaToolFailedError creates a non-retryable external tool error.
func NewMediaToolFailedError(tool string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMediaToolFailed,
		Message:   "Media tool execution failed",
		Details:   fmt.Sprintf("tool: %s, error: %s", tool, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionStoreFailedError creates a retryable session store error.
func NewSessionStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStoreFailed,
		Message:   "Session store error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// httpStatusMapping maps internal error codes to HTTP status codes.
var httpStatusMapping = map[ErrorCode]int{
	ErrCodeAuthRequired:       http.StatusUnauthorized,
	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	ErrCodeSessionExpired:     http.StatusUnauthorized,
	ErrCodeDuplicateUsername:  http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusBadRequest,
	ErrCodeNoScenesToMerge:    http.StatusBadRequest,
	ErrCodeFileNotFound:       http.StatusNotFound,
	ErrCodeRequestTimeout:     http.StatusServiceUnavailable,
	ErrCodeRenderRateLimited:  http.StatusTooManyRequests,
}

// HTTPStatus returns the HTTP status code for an error code. Unmapped codes
// are treated as internal failures.
func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPStatus returns the HTTP status code for this error.
func (e *StandardError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// ==========================
// 4. Utility Functions
// ==========================

// IsCode reports whether err is a StandardError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	stdErr, ok := err.(*StandardError)
	return ok && stdErr.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "AUTH") || strings.Contains(codeStr, "CREDENTIALS") || strings.Contains(codeStr, "SESSION"):
		return "AUTH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "RENDER") || strings.Contains(codeStr, "SCENE") || strings.Contains(codeStr, "PROMPT"):
		return "RENDER"
	case strings.Contains(codeStr, "SPEECH") || strings.Contains(codeStr, "TRANSCRIPTION") || strings.Contains(codeStr, "MEDIA") || strings.Contains(codeStr, "SCRIPT"):
		return "MEDIA"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "DUPLICATE"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
