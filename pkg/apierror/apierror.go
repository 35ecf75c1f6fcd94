// Package apierror provides structured API errors for the negotiation core.
package apierror

import (
	"errors"
	"net/http"
)

// Taxonomy codes for the negotiation core.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeListingUnavailable  = "LISTING_UNAVAILABLE"
	CodeNegotiationTerminal = "NEGOTIATION_TERMINAL"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeDispatchFailure     = "DISPATCH_FAILURE"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`

	// State carries the current authoritative state alongside conflict
	// errors so callers can reconcile without a second read.
	State any `json:"state,omitempty"`
}

// FieldError identifies the specific field at fault in a validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithDetails adds field-level error details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = details
	return e
}

// WithState attaches the current authoritative state to the error.
func (e *Error) WithState(state any) *Error {
	e.State = state
	return e
}

// InvalidInput creates an INVALID_INPUT error naming the field at fault.
func InvalidInput(field, message string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidInput,
		Message:    message,
		Details:    []FieldError{{Field: field, Message: message}},
	}
}

// NotFound creates a NOT_FOUND error.
func NotFound(message string) *Error {
	if message == "" {
		message = "resource not found"
	}
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    message,
	}
}

// ListingUnavailable creates a LISTING_UNAVAILABLE conflict.
func ListingUnavailable(message string) *Error {
	if message == "" {
		message = "listing is not available for negotiation"
	}
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       CodeListingUnavailable,
		Message:    message,
	}
}

// NegotiationTerminal creates a NEGOTIATION_TERMINAL conflict. The caller
// should attach the terminal negotiation via WithState.
func NegotiationTerminal(message string) *Error {
	if message == "" {
		message = "negotiation is in a terminal state"
	}
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       CodeNegotiationTerminal,
		Message:    message,
	}
}

// InvalidTransition creates an INVALID_TRANSITION conflict.
func InvalidTransition(message string) *Error {
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       CodeInvalidTransition,
		Message:    message,
	}
}

// DispatchFailure creates a DISPATCH_FAILURE error. It is logged and alerted
// on, never returned to negotiation callers.
func DispatchFailure(message string) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDispatchFailure,
		Message:    message,
	}
}

// As extracts an *Error from err, or wraps it as an internal error.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	if apiErr, ok := As(err); ok {
		return apiErr.Code == code
	}
	return false
}
