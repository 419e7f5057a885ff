// internal/common/errors/handler.go
package errors

import (
	"context"
	"time"
)

// ErrorHandler normalizes arbitrary errors into StandardError values and logs
// them consistently before they are written to an HTTP response.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err, logs it against the given operation, and returns the
// StandardError to write to the client.
func (h *ErrorHandler) Handle(ctx context.Context, operation string, err error) *StandardError {
	stdErr := Normalize(ctx, operation, err)

	h.logger.Error("operation failed", map[string]interface{}{
		"operation":     operation,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"httpStatus":    HTTPStatus(stdErr.Code),
	})

	return stdErr
}

// Normalize ensures we always have a StandardError. Context deadline
// expiration maps to the request timeout code so long renders surface as 503
// rather than a generic internal error.
func Normalize(ctx context.Context, operation string, err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	if ctx != nil && ctx.Err() == context.DeadlineExceeded {
		return NewRequestTimeoutError(operation)
	}
	return &StandardError{
		Code:      ErrCodeInternalError,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
