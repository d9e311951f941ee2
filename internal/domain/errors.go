package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AppError represents a domain-specific error with structured information and enhanced context
type AppError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Cause      error     `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error wrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *AppError) WithContext(ctx context.Context, operation string) *AppError {
	if requestID := ctx.Value("request_id"); requestID != nil {
		if id, ok := requestID.(string); ok {
			e.RequestID = id
		}
	}
	e.Operation = operation
	return e
}

// Error codes for different error categories
const (
	ErrInvalidInput     = "INVALID_INPUT"     // 400 Bad Request
	ErrValidationFailed = "VALIDATION_FAILED" // 422 Unprocessable Entity
	ErrNotFound         = "NOT_FOUND"         // 404 Not Found
	ErrInternal         = "INTERNAL_ERROR"    // 500 Internal Server Error
	ErrTimeout          = "TIMEOUT"           // 408 Request Timeout
	ErrRateLimit        = "RATE_LIMIT"        // 429 Too Many Requests

	// Persistence error codes
	ErrStoreCorrupt = "STORE_CORRUPT"      // 500 Snapshot is not a valid rule collection
	ErrStoreWrite   = "STORE_WRITE_FAILED" // 500 Snapshot could not be written

	// Language model capability error codes
	ErrModelUnavailable = "MODEL_UNAVAILABLE" // 503 Model endpoint unreachable
	ErrModelTimeout     = "MODEL_TIMEOUT"     // 504 Model call exceeded its deadline

	// Repository integrity error codes; these indicate programming defects
	ErrDuplicateID      = "DUPLICATE_ID"      // 409 Rule id collision on add
	ErrDuplicatePattern = "DUPLICATE_PATTERN" // 409 Pattern already covered by another rule

	// Synthesis error codes
	ErrSynthesisInvalid = "SYNTHESIS_INVALID" // 422 Candidate rule malformed or duplicate
)

// NewAppError creates a new AppError with the specified parameters
func NewAppError(code, message string, statusCode int, details any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
		Timestamp:  time.Now(),
	}
}

// NewAppErrorWithCause creates a new AppError with underlying cause
func NewAppErrorWithCause(code, message string, statusCode int, cause error, details any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

// CodeOf extracts the machine code from an error, or INTERNAL_ERROR
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// hasCode reports whether the error carries the given code
func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound)
}

// IsDuplicateID checks if the error is an id collision
func IsDuplicateID(err error) bool {
	return hasCode(err, ErrDuplicateID)
}

// IsStoreCorrupt checks if the error marks a corrupt persistence snapshot
func IsStoreCorrupt(err error) bool {
	return hasCode(err, ErrStoreCorrupt)
}

// IsModelError checks if the error came from the language model capability
func IsModelError(err error) bool {
	return hasCode(err, ErrModelUnavailable) || hasCode(err, ErrModelTimeout)
}

// IsSynthesisInvalid checks if the error rejected a synthesized candidate
func IsSynthesisInvalid(err error) bool {
	return hasCode(err, ErrSynthesisInvalid)
}
