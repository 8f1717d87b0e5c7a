package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAssignsDocumentedStatus(t *testing.T) {
	tests := []struct {
		sentinel error
		want     int
	}{
		{ErrUnparsable, http.StatusUnprocessableEntity},
		{ErrInvalidMetadata, http.StatusUnprocessableEntity},
		{ErrPayloadTooLarge, http.StatusUnprocessableEntity},
		{ErrTooFewLocations, http.StatusPreconditionFailed},
		{ErrSkipUpload, http.StatusPreconditionFailed},
		{ErrSessionExpired, http.StatusNotFound},
		{ErrUnexpectedContentRange, http.StatusNotFound},
		{ErrDuplicate, http.StatusConflict},
		{ErrContentRangeNotMatchingLength, http.StatusInternalServerError},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrStorageFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		apiErr := New(tt.sentinel, "corr-1", "boom")
		assert.Equal(t, tt.want, apiErr.HTTPStatus)
		assert.True(t, errors.Is(apiErr, tt.sentinel))
	}
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	apiErr := New(ErrDuplicate, "corr-42", "already stored")

	assert.True(t, errors.Is(apiErr, ErrDuplicate))
	assert.Contains(t, apiErr.Error(), "corr-42")
	assert.Contains(t, apiErr.Error(), "409")
}

func TestHTTPStatusForUnknownErrorDefaultsTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFor(errors.New("unrelated")))
}

func TestShouldCleanupChunkOnlyForPayloadTooLarge(t *testing.T) {
	assert.True(t, ShouldCleanupChunk(ErrPayloadTooLarge))
	assert.False(t, ShouldCleanupChunk(ErrUnexpectedContentRange))
	assert.False(t, ShouldCleanupChunk(ErrSessionExpired))
}
