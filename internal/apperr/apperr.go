// Package apperr defines the server's error kinds and their mapping
// to HTTP status codes. Validators and the registry raise typed
// kinds; handlers propagate them unchanged; the HTTP adapter is the
// only place a Kind becomes a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the eight outcomes a request can fail with.
type Kind string

const (
	InvalidRequest        Kind = "invalid_request"
	AuthenticationFailed  Kind = "authentication_failed"
	ResourceNotAvailable  Kind = "resource_not_available"
	InvalidSignature      Kind = "invalid_signature"
	ResourceAlreadyExists Kind = "resource_already_exists"
	RequestOutdated       Kind = "request_outdated"
	InvalidKeyUpload      Kind = "invalid_key_upload"
	InternalError         Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	InvalidRequest:        http.StatusBadRequest,
	AuthenticationFailed:  http.StatusUnauthorized,
	ResourceNotAvailable:  http.StatusNotFound,
	InvalidSignature:      http.StatusNotAcceptable,
	ResourceAlreadyExists: http.StatusConflict,
	RequestOutdated:       http.StatusGone,
	InvalidKeyUpload:      http.StatusPreconditionFailed,
	InternalError:         http.StatusInternalServerError,
}

// Status returns the HTTP status code for k, defaulting to 500 for an
// unrecognized kind (which should never happen for a kind minted by
// this package's own constructors).
func (k Kind) Status() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is an application error carrying a Kind, a message meant for
// logs and clients, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, carrying cause for
// Unwrap and Error(); the HTTP adapter sends clients only the kind
// and message, never the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Invalid(message string) *Error      { return New(InvalidRequest, message) }
func Unauthorized(message string) *Error { return New(AuthenticationFailed, message) }
func NotFound(message string) *Error     { return New(ResourceNotAvailable, message) }
func BadSignature(message string) *Error { return New(InvalidSignature, message) }
func AlreadyExists(message string) *Error { return New(ResourceAlreadyExists, message) }
func Outdated(message string) *Error     { return New(RequestOutdated, message) }
func BadKeyUpload(message string) *Error { return New(InvalidKeyUpload, message) }
func Internal(message string, cause error) *Error {
	return Wrap(InternalError, message, cause)
}

// KindOf extracts the Kind of err if it is, or wraps, an *Error;
// otherwise it returns InternalError, the safe default for an
// unclassified failure.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return InternalError
}
