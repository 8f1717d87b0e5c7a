package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// body is the wire shape of an error response.
type body struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// WriteJSON writes err as a JSON error body with the status the error
// taxonomy assigns it, and logs the failure at a severity matching that
// status. Handlers call this exactly once per request on the failure
// path; it is the single place HTTP status codes are chosen from errors.
func WriteJSON(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = New(ErrStorageFailure, "", "internal error")
	}

	logLevel := slog.LevelWarn
	if apiErr.HTTPStatus >= http.StatusInternalServerError {
		logLevel = slog.LevelError
	}

	logger.Log(context.Background(), logLevel, "request failed",
		slog.Int("status", apiErr.HTTPStatus),
		slog.String("correlation_id", apiErr.CorrelationID),
		slog.String("error", apiErr.Error()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)

	_ = json.NewEncoder(w).Encode(body{
		Error:         sentinelName(apiErr.Err),
		Message:       apiErr.Message,
		CorrelationID: apiErr.CorrelationID,
	})
}

// sentinelName maps a sentinel error to the stable machine-readable kind
// name used in the JSON "error" field.
func sentinelName(sentinel error) string {
	switch {
	case errors.Is(sentinel, ErrUnparsable):
		return "unparsable"
	case errors.Is(sentinel, ErrInvalidMetadata):
		return "invalid_metadata"
	case errors.Is(sentinel, ErrDeprecatedFormatVersion):
		return "deprecated_format_version"
	case errors.Is(sentinel, ErrUnknownFormatVersion):
		return "unknown_format_version"
	case errors.Is(sentinel, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(sentinel, ErrTooFewLocations):
		return "too_few_locations"
	case errors.Is(sentinel, ErrSkipUpload):
		return "skip_upload"
	case errors.Is(sentinel, ErrSessionExpired):
		return "session_expired"
	case errors.Is(sentinel, ErrUnexpectedContentRange):
		return "unexpected_content_range"
	case errors.Is(sentinel, ErrDuplicate):
		return "duplicate"
	case errors.Is(sentinel, ErrContentRangeNotMatchingLength):
		return "content_range_not_matching_length"
	case errors.Is(sentinel, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(sentinel, ErrForbidden):
		return "forbidden"
	case errors.Is(sentinel, ErrStorageFailure):
		return "storage_failure"
	default:
		return "internal"
	}
}
