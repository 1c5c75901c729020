package dto

import (
	"errors"
	"net/http"

	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// APIError represents a structured error response.
// All error responses from the API use this format for consistency.
type APIError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	EntryIDs []string          `json:"entry_ids,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Common error codes
const (
	ErrCodeNotFound        = "not_found"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeInternalError   = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeConflict        = "conflict"
	ErrCodeAlreadyReversed = "already_reversed"
	ErrCodeTimeout         = "storage_timeout"
	ErrCodePassRunning     = "pass_running"
)

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
	}
}

// NotFoundError creates a not found error response.
func NotFoundError(resource string) APIError {
	return NewAPIError(ErrCodeNotFound, resource+" not found")
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) APIError {
	return NewAPIError(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() APIError {
	return NewAPIError(ErrCodeInternalError, "an internal error occurred")
}

// InvalidRequestError reports a request body that failed its struct tags.
func InvalidRequestError(err error) APIError {
	apiErr := NewAPIError(ErrCodeBadRequest, "request failed validation")
	apiErr.Fields = ValidationFields(err)
	if apiErr.Fields == nil {
		apiErr.Message = err.Error()
	}
	return apiErr
}

// ValidationError creates a validation error response.
func ValidationError(message string) APIError {
	return NewAPIError(ErrCodeValidation, message)
}

// FromError maps a service error onto an HTTP status and error body.
// Unknown errors become a generic 500 so internals never leak.
func FromError(err error) (int, APIError) {
	var conflict *ledger.ConflictError
	switch {
	case errors.As(err, &conflict):
		apiErr := NewAPIError(ErrCodeConflict, err.Error())
		apiErr.EntryIDs = conflict.EntryIDs
		return http.StatusConflict, apiErr
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, NewAPIError(ErrCodeConflict, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, NewAPIError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ledger.ErrAlreadyReversed):
		return http.StatusConflict, NewAPIError(ErrCodeAlreadyReversed, err.Error())
	case errors.Is(err, ledger.ErrInvalidWindow), errors.Is(err, ledger.ErrInvalidMatch):
		return http.StatusUnprocessableEntity, ValidationError(err.Error())
	case errors.Is(err, ledger.ErrStorageTimeout):
		return http.StatusGatewayTimeout, NewAPIError(ErrCodeTimeout, err.Error())
	case errors.Is(err, service.ErrPassRunning):
		return http.StatusConflict, NewAPIError(ErrCodePassRunning, err.Error())
	}
	return http.StatusInternalServerError, InternalError()
}
