// Package apierror defines the error taxonomy shared by the pre-request,
// upload, and status handlers: a small set of sentinel errors checked with
// errors.Is, wrapped in a typed Error that carries the stable HTTP status
// and a correlation id for logging.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for classification. Use errors.Is(err, apierror.ErrX)
// to check, mirroring the graph client's status-classification pattern.
var (
	ErrUnparsable                    = errors.New("apierror: syntactically invalid metadata")
	ErrInvalidMetadata               = errors.New("apierror: metadata field out of range or missing")
	ErrDeprecatedFormatVersion       = errors.New("apierror: format version is older than current")
	ErrUnknownFormatVersion          = errors.New("apierror: format version is not current")
	ErrPayloadTooLarge               = errors.New("apierror: declared payload exceeds limit")
	ErrTooFewLocations               = errors.New("apierror: location count below minimum")
	ErrSkipUpload                    = errors.New("apierror: semantic skip predicate matched")
	ErrSessionExpired                = errors.New("apierror: session absent or expired")
	ErrUnexpectedContentRange        = errors.New("apierror: content-range offset inconsistent with server state")
	ErrDuplicate                     = errors.New("apierror: unique index violation")
	ErrContentRangeNotMatchingLength = errors.New("apierror: server wrote a different byte count than declared")
	ErrUnauthorized                  = errors.New("apierror: missing or invalid bearer token")
	ErrForbidden                     = errors.New("apierror: caller not permitted to act as this device")
	ErrStorageFailure                = errors.New("apierror: storage backend I/O error")
)

// Error wraps a sentinel error with the stable HTTP status it maps to and
// a correlation id threaded through structured logs, mirroring the
// teacher's GraphError{StatusCode, RequestID, Message, Err} shape.
type Error struct {
	HTTPStatus    int
	CorrelationID string
	Message       string
	Err           error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("apierror: HTTP %d (correlation-id: %s): %s", e.HTTPStatus, e.CorrelationID, e.Message)
	}

	return fmt.Sprintf("apierror: HTTP %d: %s", e.HTTPStatus, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// statusFor maps each sentinel to its stable HTTP status per the error
// taxonomy. PayloadTooLarge deliberately diverges from the obvious
// per-kind HTTP code (422 rather than 413) to match the documented table.
var statusFor = map[error]int{
	ErrUnparsable:                    http.StatusUnprocessableEntity,
	ErrInvalidMetadata:               http.StatusUnprocessableEntity,
	ErrDeprecatedFormatVersion:       http.StatusUnprocessableEntity,
	ErrUnknownFormatVersion:          http.StatusUnprocessableEntity,
	ErrPayloadTooLarge:               http.StatusUnprocessableEntity,
	ErrTooFewLocations:               http.StatusPreconditionFailed,
	ErrSkipUpload:                    http.StatusPreconditionFailed,
	ErrSessionExpired:                http.StatusNotFound,
	ErrUnexpectedContentRange:        http.StatusNotFound,
	ErrDuplicate:                     http.StatusConflict,
	ErrContentRangeNotMatchingLength: http.StatusInternalServerError,
	ErrUnauthorized:                  http.StatusUnauthorized,
	ErrForbidden:                     http.StatusForbidden,
	ErrStorageFailure:                http.StatusInternalServerError,
}

// New wraps sentinel with its documented HTTP status, a correlation id,
// and a human-readable message for logging and the JSON response body.
func New(sentinel error, correlationID, message string) *Error {
	status, ok := statusFor[sentinel]
	if !ok {
		status = http.StatusInternalServerError
	}

	return &Error{HTTPStatus: status, CorrelationID: correlationID, Message: message, Err: sentinel}
}

// HTTPStatusFor reports the stable HTTP status for a sentinel, or 500 if
// the error is not one of this package's sentinels.
func HTTPStatusFor(err error) int {
	for sentinel, status := range statusFor {
		if errors.Is(err, sentinel) {
			return status
		}
	}

	return http.StatusInternalServerError
}

// FromWrapped builds an *Error from err, which wraps one of this
// package's sentinels (typically via fmt.Errorf("%w: detail", sentinel)).
// It recovers the original sentinel with errors.Is so the resulting
// Error's HTTP status and Unwrap chain stay correct, and uses err's own
// text as the message.
func FromWrapped(err error, correlationID string) *Error {
	for sentinel := range statusFor {
		if errors.Is(err, sentinel) {
			return New(sentinel, correlationID, err.Error())
		}
	}

	return New(ErrStorageFailure, correlationID, err.Error())
}

// cleanupOnTerminal reports whether a terminal failure of this kind should
// trigger temporary-chunk cleanup per the propagation policy: only
// PayloadTooLarge and explicit abort are terminal; every other failure
// retains the chunk file for resume.
func cleanupOnTerminal(sentinel error) bool {
	return errors.Is(sentinel, ErrPayloadTooLarge)
}

// ShouldCleanupChunk reports whether err represents a terminal failure
// that should delete the in-flight temporary chunk rather than retain it
// for resume.
func ShouldCleanupChunk(err error) bool {
	return cleanupOnTerminal(err)
}
