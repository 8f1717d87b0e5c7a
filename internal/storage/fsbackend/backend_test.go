package fsbackend

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/storage"
	"github.com/sensorvault/upload-gateway/internal/uploadable"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := Open(context.Background(), filepath.Join(dir, "blobs"), filepath.Join(dir, "index.db"), logger)
	require.NoError(t, err)

	t.Cleanup(func() { b.Close() })

	return b
}

func sampleMeasurement() storage.StoredMeasurement {
	return storage.StoredMeasurement{
		DeviceIdentifier:      uuid.New(),
		MeasurementIdentifier: 1,
		FileType:              uploadable.FileTypeMeasurement,
		UserID:                "user-1",
		Uploadable: uploadable.Uploadable{
			MeasurementMetaData: uploadable.MeasurementMetaData{LocationCount: 2, Modality: "bike"},
		},
		CreatedAt: time.Now(),
	}
}

func TestStoreThenIsStored(t *testing.T) {
	b := newTestBackend(t)
	meas := sampleMeasurement()

	stored, err := b.IsStored(context.Background(), meas.KeyOf())
	require.NoError(t, err)
	assert.False(t, stored)

	require.NoError(t, b.Store(context.Background(), meas, strings.NewReader("blob-bytes")))

	stored, err = b.IsStored(context.Background(), meas.KeyOf())
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestStoreRejectsDuplicateKey(t *testing.T) {
	b := newTestBackend(t)
	meas := sampleMeasurement()

	require.NoError(t, b.Store(context.Background(), meas, strings.NewReader("first")))

	err := b.Store(context.Background(), meas, strings.NewReader("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrDuplicate)
}

func TestStoreAllowsDifferentFileTypesForSameMeasurement(t *testing.T) {
	b := newTestBackend(t)
	base := sampleMeasurement()

	require.NoError(t, b.Store(context.Background(), base, strings.NewReader("measurement-blob")))

	attachment := base
	attachment.FileType = uploadable.FileTypeImage
	require.NoError(t, b.Store(context.Background(), attachment, strings.NewReader("image-blob")))

	stored, err := b.IsStored(context.Background(), attachment.KeyOf())
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestEnsureIndexesIsIdempotent(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.EnsureIndexes(context.Background()))
	require.NoError(t, b.EnsureIndexes(context.Background()))
}
