package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/authn"
	"github.com/sensorvault/upload-gateway/internal/config"
	"github.com/sensorvault/upload-gateway/internal/session"
	"github.com/sensorvault/upload-gateway/internal/storage"
	"github.com/sensorvault/upload-gateway/internal/uploadable"
)

// fakeVerifier accepts any non-empty token and authenticates it as a
// fixed principal, so tests never need real JWTs.
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, rawToken string) (authn.User, error) {
	if rawToken == "" {
		return authn.User{}, authn.ErrInvalidToken
	}

	return authn.User{ID: "user-1", DisplayName: "Test User"}, nil
}

// memoryBackend is a minimal in-process storage.Backend for exercising
// the handlers without a real blob store.
type memoryBackend struct {
	mu    sync.Mutex
	blobs map[storage.Key][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{blobs: make(map[storage.Key][]byte)}
}

func (b *memoryBackend) EnsureIndexes(context.Context) error { return nil }

func (b *memoryBackend) IsStored(_ context.Context, key storage.Key) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.blobs[key]

	return ok, nil
}

func (b *memoryBackend) Store(_ context.Context, meas storage.StoredMeasurement, blob io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := meas.KeyOf()
	if _, exists := b.blobs[key]; exists {
		return apierror.New(apierror.ErrDuplicate, "", "already stored")
	}

	data, err := io.ReadAll(blob)
	if err != nil {
		return err
	}

	b.blobs[key] = data

	return nil
}

func (b *memoryBackend) Close() error { return nil }

func newTestHandlers(t *testing.T, backend *memoryBackend) *Handlers {
	t.Helper()

	svc := storage.NewService(backend, t.TempDir())
	upload := config.UploadConfig{
		ExpirationMillis:  time.Hour.Milliseconds(),
		PayloadLimitBytes: 1 << 20,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(session.New(), svc, upload, "/api/v3", logger)
}

func newTestRouter(t *testing.T, h *Handlers) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRouter(h, fakeVerifier{}, logger)
}

func validUploadableJSON(t *testing.T, measurementID int64) []byte {
	t.Helper()

	u := uploadable.Uploadable{
		DeviceIdentifier:      uuid.New(),
		MeasurementIdentifier: measurementID,
		DeviceMetaData: uploadable.DeviceMetaData{
			OperatingSystemVersion: "14",
			DeviceType:             "pixel",
		},
		ApplicationMetaData: uploadable.ApplicationMetaData{
			ApplicationVersion: "1.0.0",
			FormatVersion:      uploadable.CurrentFormatVersion,
		},
		MeasurementMetaData: uploadable.MeasurementMetaData{
			Length:        100,
			LocationCount: 2,
			StartLocation: uploadable.GeoLocation{TimestampMillis: 1, Latitude: 1, Longitude: 1},
			EndLocation:   uploadable.GeoLocation{TimestampMillis: 2, Latitude: 2, Longitude: 2},
			Modality:      "bike",
		},
	}

	data, err := uploadable.ToJSON(u)
	require.NoError(t, err)

	return data
}

var uploadIDPattern = regexp.MustCompile(`\(([0-9a-f]{32})\)`)

func extractUploadID(t *testing.T, location string) string {
	t.Helper()

	m := uploadIDPattern.FindStringSubmatch(location)
	require.Len(t, m, 2, "location %q did not contain an upload id", location)

	return m[1]
}

func doPreRequest(t *testing.T, router http.Handler, body []byte, contentLength int64) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v3/measurements", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-upload-content-length", fmt.Sprintf("%d", contentLength))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func doChunk(t *testing.T, router http.Handler, uploadID, contentRange string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	path := fmt.Sprintf("/api/v3/measurements/(%s)/", uploadID)
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Range", contentRange)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestPreRequestThenSingleChunkCompletes(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	pre := doPreRequest(t, router, validUploadableJSON(t, 1), 4)
	require.Equal(t, http.StatusOK, pre.Code)

	uploadID := extractUploadID(t, pre.Header().Get("Location"))

	chunk := doChunk(t, router, uploadID, "bytes 0-3/4", []byte("abcd"))
	assert.Equal(t, http.StatusCreated, chunk.Code)
}

func TestUploadChunkedInTwoParts(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	pre := doPreRequest(t, router, validUploadableJSON(t, 2), 4)
	require.Equal(t, http.StatusOK, pre.Code)
	uploadID := extractUploadID(t, pre.Header().Get("Location"))

	first := doChunk(t, router, uploadID, "bytes 0-1/4", []byte("ab"))
	require.Equal(t, http.StatusPermanentRedirect, first.Code)
	assert.Equal(t, "bytes=0-1", first.Header().Get("Range"))

	second := doChunk(t, router, uploadID, "bytes 2-3/4", []byte("cd"))
	assert.Equal(t, http.StatusCreated, second.Code)
}

func TestStatusQueryBeforeAnyBytesOmitsRange(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	pre := doPreRequest(t, router, validUploadableJSON(t, 3), 4)
	require.Equal(t, http.StatusOK, pre.Code)
	uploadID := extractUploadID(t, pre.Header().Get("Location"))

	status := doChunk(t, router, uploadID, "bytes */4", nil)
	assert.Equal(t, http.StatusPermanentRedirect, status.Code)
	assert.Empty(t, status.Header().Get("Range"))
}

func TestStatusQueryReportsPartialProgress(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	pre := doPreRequest(t, router, validUploadableJSON(t, 4), 4)
	require.Equal(t, http.StatusOK, pre.Code)
	uploadID := extractUploadID(t, pre.Header().Get("Location"))

	require.Equal(t, http.StatusPermanentRedirect, doChunk(t, router, uploadID, "bytes 0-1/4", []byte("ab")).Code)

	status := doChunk(t, router, uploadID, "bytes */4", nil)
	assert.Equal(t, http.StatusPermanentRedirect, status.Code)
	assert.Equal(t, "bytes=0-1", status.Header().Get("Range"))
}

func TestUnknownUploadIdentifierReturns404(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	rec := doChunk(t, router, strings.Repeat("0", 32), "bytes 0-3/4", []byte("abcd"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaleOffsetIsDiscardedWith308(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	pre := doPreRequest(t, router, validUploadableJSON(t, 5), 4)
	require.Equal(t, http.StatusOK, pre.Code)
	uploadID := extractUploadID(t, pre.Header().Get("Location"))

	require.Equal(t, http.StatusPermanentRedirect, doChunk(t, router, uploadID, "bytes 0-1/4", []byte("ab")).Code)

	stale := doChunk(t, router, uploadID, "bytes 0-1/4", []byte("xy"))
	assert.Equal(t, http.StatusPermanentRedirect, stale.Code)
	assert.Equal(t, "bytes=0-1", stale.Header().Get("Range"), "current size reported, stale write discarded")
}

func TestPreRequestRejectsTooFewLocations(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	u := uploadable.Uploadable{
		DeviceIdentifier:      uuid.New(),
		MeasurementIdentifier: 6,
		DeviceMetaData:        uploadable.DeviceMetaData{OperatingSystemVersion: "14", DeviceType: "pixel"},
		ApplicationMetaData:   uploadable.ApplicationMetaData{ApplicationVersion: "1.0.0", FormatVersion: uploadable.CurrentFormatVersion},
		MeasurementMetaData:   uploadable.MeasurementMetaData{Length: 1, LocationCount: 1, Modality: "bike"},
	}
	body, err := uploadable.ToJSON(u)
	require.NoError(t, err)

	rec := doPreRequest(t, router, body, 4)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestPreRequestRejectsOversizedDeclaredLength(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	h.upload.PayloadLimitBytes = 2
	router := newTestRouter(t, h)

	rec := doPreRequest(t, router, validUploadableJSON(t, 7), 4)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPreRequestRejectsDuplicateMeasurement(t *testing.T) {
	backend := newMemoryBackend()
	h := newTestHandlers(t, backend)
	router := newTestRouter(t, h)

	body := validUploadableJSON(t, 8)

	u, err := uploadable.FromJSON(body)
	require.NoError(t, err)

	require.NoError(t, backend.Store(context.Background(), storage.StoredMeasurement{
		DeviceIdentifier:      u.DeviceIdentifier,
		MeasurementIdentifier: u.MeasurementIdentifier,
		FileType:              u.FileType(),
	}, strings.NewReader("x")))

	rec := doPreRequest(t, router, body, 4)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadRejectsPayloadExceedingLimit(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	router := newTestRouter(t, h)

	pre := doPreRequest(t, router, validUploadableJSON(t, 9), 4)
	require.Equal(t, http.StatusOK, pre.Code)
	uploadID := extractUploadID(t, pre.Header().Get("Location"))

	h.upload.PayloadLimitBytes = 2

	rec := doChunk(t, router, uploadID, "bytes 0-3/4", []byte("abcd"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	h := newTestHandlers(t, newMemoryBackend())
	start := time.Now()
	h.now = func() time.Time { return start }
	h.upload.ExpirationMillis = time.Minute.Milliseconds()
	router := newTestRouter(t, h)

	pre := doPreRequest(t, router, validUploadableJSON(t, 10), 4)
	require.Equal(t, http.StatusOK, pre.Code)
	uploadID := extractUploadID(t, pre.Header().Get("Location"))

	h.now = func() time.Time { return start.Add(2 * time.Minute) }

	rec := doChunk(t, router, uploadID, "bytes 0-3/4", []byte("abcd"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
