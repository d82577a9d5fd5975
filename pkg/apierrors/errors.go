package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the class of a frontend error
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindGone        Kind = "gone"
	KindUpstream    Kind = "upstream"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Error is the result type used throughout the app to distinguish validation
// failures (with field-level messages), scope/authorization failures and
// upstream transport failures. The HTTPStatus is what the handler layer
// ultimately sends to the client.
type Error struct {
	Kind        Kind              `json:"kind"`
	Message     string            `json:"message"`
	HTTPStatus  int               `json:"-"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Cause       error             `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation creates a 400 error carrying field-level messages keyed by
// question or form-field id.
func Validation(message string, fieldErrors map[string]string) *Error {
	return &Error{
		Kind:        KindValidation,
		Message:     message,
		HTTPStatus:  http.StatusBadRequest,
		FieldErrors: fieldErrors,
	}
}

// NotFound creates a 404 error. Authorization and scope failures use this
// too, so callers cannot distinguish "not found" from "not permitted".
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Gone creates a 410 error for resources that used to be editable.
func Gone(message string) *Error {
	return &Error{Kind: KindGone, Message: message, HTTPStatus: http.StatusGone}
}

// Unavailable creates a 503 error for failed outbound email or storage calls.
func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, HTTPStatus: http.StatusServiceUnavailable, Cause: cause}
}

// Internal creates a 500 error with an underlying cause.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Cause: cause}
}

// Upstream creates an error that forwards the data API's own status code to
// the client. 400 responses with a decoded error payload become validation
// errors so handlers can re-render forms with field messages.
func Upstream(status int, message string, fieldErrors map[string]string) *Error {
	kind := KindUpstream
	switch status {
	case http.StatusBadRequest:
		kind = KindValidation
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusGone:
		kind = KindGone
	}
	return &Error{Kind: kind, Message: message, HTTPStatus: status, FieldErrors: fieldErrors}
}

// StatusOf returns the HTTP status an error should be rendered with,
// defaulting to 500 for errors that did not come from this package.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err is a 404-class error.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusNotFound
}

// FieldErrorsOf returns the field-level messages attached to a validation
// error, or nil.
func FieldErrorsOf(err error) map[string]string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.FieldErrors
	}
	return nil
}
