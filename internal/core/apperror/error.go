// Package apperror provides structured error handling for the stock ledger.
// Every rejection surfaced by the ledger core is an *AppError with a stable code,
// so callers and the HTTP layer can branch on the kind without string matching.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal    = "INTERNAL_ERROR"
	CodeDatabase    = "DATABASE_ERROR"
	CodeLockTimeout = "LOCK_TIMEOUT"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidMovement = "INVALID_MOVEMENT"

	// Stock rule violations (422)
	CodeInsufficientStock       = "INSUFFICIENT_STOCK"
	CodeInsufficientReservation = "INSUFFICIENT_RESERVATION"
	CodeNegativeQuantity        = "NEGATIVE_QUANTITY"
	CodeIntegrityViolation      = "INTEGRITY_VIOLATION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeAlreadyCancelled       = "ALREADY_CANCELLED"
	CodeAlreadyPosted          = "ALREADY_POSTED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type of the ledger core.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (quantities, keys, ids)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError carrying the same code, so sentinel-style
// comparisons like errors.Is(err, apperror.ErrInsufficientStock) work.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Details == nil
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Code-only sentinels for errors.Is.
var (
	ErrInvalidMovement         = &AppError{Code: CodeInvalidMovement}
	ErrInsufficientStock       = &AppError{Code: CodeInsufficientStock}
	ErrInsufficientReservation = &AppError{Code: CodeInsufficientReservation}
	ErrNegativeQuantity        = &AppError{Code: CodeNegativeQuantity}
	ErrAlreadyCancelled        = &AppError{Code: CodeAlreadyCancelled}
	ErrNotFound                = &AppError{Code: CodeNotFound}
)

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidMovement rejects a movement before any state change:
// non-positive quantity, missing reason, disabled batch and the like.
func NewInvalidMovement(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidMovement,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInsufficientStock creates a stock shortage error.
// Quantities are passed as decimal strings to keep full precision in details.
func NewInsufficientStock(key string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"key":       key,
			"requested": requested,
			"available": available,
		},
	}
}

// NewInsufficientReservation is returned when a release exceeds the reserved quantity.
func NewInsufficientReservation(key string, requested, reserved string) *AppError {
	return &AppError{
		Code:       CodeInsufficientReservation,
		Message:    "Release exceeds reserved quantity",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"key":       key,
			"requested": requested,
			"reserved":  reserved,
		},
	}
}

// NewNegativeQuantity is returned when a direct update or counter would go below zero.
func NewNegativeQuantity(message string) *AppError {
	return &AppError{
		Code:       CodeNegativeQuantity,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewAlreadyCancelled creates a double-cancel error (409)
func NewAlreadyCancelled(entryID any) *AppError {
	return &AppError{
		Code:       CodeAlreadyCancelled,
		Message:    "Ledger entry is already cancelled",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entry_id": entryID},
	}
}

// NewAlreadyPosted is returned when a movement was posted before.
func NewAlreadyPosted(movementID any) *AppError {
	return &AppError{
		Code:       CodeAlreadyPosted,
		Message:    "Movement is already posted",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"movement_id": movementID},
	}
}

// NewIntegrityViolation reports a divergence between the ledger and a materialized balance.
func NewIntegrityViolation(message string) *AppError {
	return &AppError{
		Code:       CodeIntegrityViolation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently. Retry the operation.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewLockTimeout is returned when a per-key lock could not be obtained in time.
func NewLockTimeout(keys []string) *AppError {
	return &AppError{
		Code:       CodeLockTimeout,
		Message:    "Could not lock stock keys",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"keys": keys},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the error code, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool {
	return CodeOf(err) == CodeInsufficientStock
}

// IsInvalidMovement checks if error is CodeInvalidMovement
func IsInvalidMovement(err error) bool {
	return CodeOf(err) == CodeInvalidMovement
}

// IsAlreadyCancelled checks if error is CodeAlreadyCancelled
func IsAlreadyCancelled(err error) bool {
	return CodeOf(err) == CodeAlreadyCancelled
}
