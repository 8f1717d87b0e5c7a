// Package storage defines the C5 storage service: the interface
// satisfied by every blob-store backend (filesystem, GridFS, S3) and
// the service that sits in front of it, bridging the temporary-chunk
// directory (chunkstore) to durable storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/chunkstore"
	"github.com/sensorvault/upload-gateway/internal/uploadable"
	"github.com/sensorvault/upload-gateway/internal/uploadid"
)

// ErrNotFound reports that no StoredMeasurement exists for a requested
// key. Backend exposes only the existence check IsStored, which reports
// absence as false rather than with this error.
var ErrNotFound = errors.New("storage: measurement not found")

// StoredMeasurement is the durable record a backend persists: the
// uniqueness key plus the metadata carried from the Uploadable and the
// authenticated principal, per the bit-exact metadata document shape.
type StoredMeasurement struct {
	DeviceIdentifier      uuid.UUID
	MeasurementIdentifier int64
	FileType              uploadable.FileType
	UserID                string
	Uploadable            uploadable.Uploadable
	CreatedAt             time.Time
}

// Key identifies a StoredMeasurement for uniqueness and lookup purposes.
// At most one record exists per Key (global invariant 1).
type Key struct {
	DeviceIdentifier      uuid.UUID
	MeasurementIdentifier int64
	FileType              uploadable.FileType
}

// KeyOf derives the storage key from a StoredMeasurement.
func (m StoredMeasurement) KeyOf() Key {
	return Key{
		DeviceIdentifier:      m.DeviceIdentifier,
		MeasurementIdentifier: m.MeasurementIdentifier,
		FileType:              m.FileType,
	}
}

// KeyFromUploadable derives the storage key a pre-request's Uploadable
// will eventually be committed under.
func KeyFromUploadable(u uploadable.Uploadable) Key {
	return Key{
		DeviceIdentifier:      u.DeviceIdentifier,
		MeasurementIdentifier: u.MeasurementIdentifier,
		FileType:              u.FileType(),
	}
}

// Backend is satisfied by every blob-store implementation. All three
// shapes named by the data model — local filesystem, GridFS, and an
// S3-compatible object store — implement this single interface so
// handler code never branches on backend type.
type Backend interface {
	// EnsureIndexes creates or verifies the unique compound index (or its
	// equivalent constraint) on (deviceId, measurementId, fileType). It
	// runs once at startup, before the HTTP listener opens.
	EnsureIndexes(ctx context.Context) error

	// IsStored reports whether a StoredMeasurement already exists for key.
	IsStored(ctx context.Context, key Key) (bool, error)

	// Store commits blob under meas.KeyOf(), streaming from blob. It
	// returns apierror.ErrDuplicate if the key already exists. Store never
	// deletes the source chunk; on any failure, what happens to the chunk
	// is the caller's decision.
	Store(ctx context.Context, meas StoredMeasurement, blob io.Reader) error

	// Close releases backend resources (DB handles, client connections).
	Close() error
}

// Service is C5: it bridges the temporary-chunk directory to a Backend,
// and is the only component other than the reaper that touches
// TemporaryChunk files.
type Service struct {
	backend Backend
	tempDir string
}

// NewService wires a Backend into a Service rooted at tempDir, the same
// directory C3 appends chunks to.
func NewService(backend Backend, tempDir string) *Service {
	return &Service{backend: backend, tempDir: tempDir}
}

// EnsureIndexes delegates to the backend, at startup.
func (s *Service) EnsureIndexes(ctx context.Context) error {
	return s.backend.EnsureIndexes(ctx)
}

// IsStored answers the existence query C2's duplicate check and C4's
// already-stored status answer both rely on.
func (s *Service) IsStored(ctx context.Context, key Key) (bool, error) {
	return s.backend.IsStored(ctx, key)
}

// BytesUploaded reports the current size of the temporary chunk for id,
// straight from the filesystem — never cached, per the concurrency
// model's "filesystem is the source of truth" rule.
func (s *Service) BytesUploaded(id uploadid.UploadIdentifier) (int64, error) {
	return chunkstore.New(s.tempDir, id).BytesUploaded()
}

// Clean removes the temporary chunk for id. Idempotent.
func (s *Service) Clean(id uploadid.UploadIdentifier) error {
	return chunkstore.New(s.tempDir, id).Delete()
}

// Append writes body to the session's temporary chunk at expectedOffset,
// creating the file on first use. Returns the new size on disk.
func (s *Service) Append(id uploadid.UploadIdentifier, body io.Reader, expectedOffset int64) (int64, error) {
	return chunkstore.New(s.tempDir, id).Append(body, expectedOffset)
}

// Commit streams the completed temporary chunk into the backend and,
// on success, deletes the chunk file. On backend failure the chunk is
// left in place so the client can retry (§4.3's "keep session intact on
// storage failure").
func (s *Service) Commit(ctx context.Context, id uploadid.UploadIdentifier, meas StoredMeasurement) error {
	chunk := chunkstore.New(s.tempDir, id)

	f, err := chunk.Open()
	if err != nil {
		return apierror.New(apierror.ErrStorageFailure, "", fmt.Sprintf("opening chunk for commit: %v", err))
	}
	defer f.Close()

	if err := s.backend.Store(ctx, meas, f); err != nil {
		if errors.Is(err, apierror.ErrDuplicate) {
			return err
		}

		return apierror.New(apierror.ErrStorageFailure, "", fmt.Sprintf("committing blob: %v", err))
	}

	if err := chunk.Delete(); err != nil {
		return apierror.New(apierror.ErrStorageFailure, "", fmt.Sprintf("cleaning chunk after commit: %v", err))
	}

	return nil
}
