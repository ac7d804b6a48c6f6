package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a scheduling failure.
type ErrorCode string

const (
	// ErrInvalidPolicy means the wait policy failed validation. Detected
	// before any network call.
	ErrInvalidPolicy ErrorCode = "INVALID_POLICY"

	// ErrAuthentication means the optimizer rejected the credential.
	ErrAuthentication ErrorCode = "AUTHENTICATION"

	// ErrForecastUnavailable means the zone is not supported or the
	// subscription has no forecast access for it.
	ErrForecastUnavailable ErrorCode = "FORECAST_UNAVAILABLE"

	// ErrMalformedResponse means the optimizer response did not contain a
	// parseable recommended start for the requested location.
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// ErrTransport covers network/timeout failures and any non-2xx status
	// not classified more specifically. Status is preserved when known.
	ErrTransport ErrorCode = "TRANSPORT"
)

// SchedulerError is a classified failure from planning or querying.
// All failures surface before any suspension is registered; a step is
// never parked on the basis of an error.
type SchedulerError struct {
	Code    ErrorCode
	Message string
	Status  int // HTTP status when relevant, 0 otherwise
	cause   error
}

func (e *SchedulerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status=%d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SchedulerError) Unwrap() error {
	return e.cause
}

// NewInvalidPolicyError creates an INVALID_POLICY error.
func NewInvalidPolicyError(msg string) *SchedulerError {
	return &SchedulerError{Code: ErrInvalidPolicy, Message: msg}
}

// NewAuthenticationError creates an AUTHENTICATION error. The message is
// fixed so credential material can never leak through it.
func NewAuthenticationError(status int) *SchedulerError {
	return &SchedulerError{
		Code:    ErrAuthentication,
		Message: "optimizer rejected the supplied credential",
		Status:  status,
	}
}

// NewForecastUnavailableError creates a FORECAST_UNAVAILABLE error.
func NewForecastUnavailableError(status int, detail string) *SchedulerError {
	msg := "no forecast available for the requested location; a real-time-only subscription is insufficient"
	if detail != "" {
		msg += ": " + detail
	}
	return &SchedulerError{Code: ErrForecastUnavailable, Message: msg, Status: status}
}

// NewMalformedResponseError creates a MALFORMED_RESPONSE error.
func NewMalformedResponseError(detail string, cause error) *SchedulerError {
	return &SchedulerError{Code: ErrMalformedResponse, Message: detail, cause: cause}
}

// NewTransportError creates a TRANSPORT error, preserving the status code
// for diagnostics when one was received.
func NewTransportError(status int, cause error) *SchedulerError {
	msg := "optimizer request failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &SchedulerError{Code: ErrTransport, Message: msg, Status: status, cause: cause}
}

// CodeOf extracts the ErrorCode from err, or ErrTransport if err carries
// no classification.
func CodeOf(err error) ErrorCode {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrTransport
}

// APIError is a structured error returned by the carbonshift API.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

const (
	APIErrValidation = "VALIDATION_ERROR"
	APIErrNotFound   = "NOT_FOUND"
	APIErrConflict   = "CONFLICT"
	APIErrInternal   = "INTERNAL_ERROR"
)

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: APIErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    APIErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a step state transition is invalid.
type InvalidTransitionError struct {
	StepID string
	From   StepState
	To     StepState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid step state transition: %s → %s (step %s)", e.From, e.To, e.StepID)
}
