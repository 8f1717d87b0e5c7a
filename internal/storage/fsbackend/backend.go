// Package fsbackend implements storage.Backend on local disk: blobs as
// plain files under a blob directory, metadata in an embedded SQLite
// index with the uniqueness constraint realized as a SQL UNIQUE
// constraint. This is the default and test backend.
package fsbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/storage"
)

const sqlInsertMeasurement = `INSERT INTO measurements
	(device_id, measurement_id, file_type, user_id, os_version, device_type,
	 app_version, length, location_count, modality, format_version,
	 start_lat, start_lon, start_timestamp, end_lat, end_lon, end_timestamp,
	 blob_path, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const sqlCountByKey = `SELECT COUNT(1) FROM measurements
	WHERE device_id = ? AND measurement_id = ? AND file_type = ?`

// Backend persists blobs under blobDir and their metadata in a SQLite
// database at dbPath. It is the sole writer to that database.
type Backend struct {
	db      *sql.DB
	logger  *slog.Logger
	blobDir string
}

// Open opens (creating if necessary) the SQLite index at dbPath and the
// blob directory at blobDir, applying pending migrations.
func Open(ctx context.Context, blobDir, dbPath string, logger *slog.Logger) (*Backend, error) {
	if err := os.MkdirAll(blobDir, 0o700); err != nil {
		return nil, fmt.Errorf("fsbackend: creating blob dir: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("fsbackend: creating db dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("fsbackend: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: SQLite handles one writer at a time; callers
	// further serialize through the storage.Service/session layer above.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Backend{db: db, logger: logger, blobDir: blobDir}, nil
}

// EnsureIndexes is a no-op beyond migration: the UNIQUE constraint was
// created by the initial migration, satisfying the startup requirement
// declaratively rather than imperatively.
func (b *Backend) EnsureIndexes(context.Context) error {
	return nil
}

func (b *Backend) IsStored(ctx context.Context, key storage.Key) (bool, error) {
	var count int

	row := b.db.QueryRowContext(ctx, sqlCountByKey, key.DeviceIdentifier.String(), key.MeasurementIdentifier, string(key.FileType))
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("fsbackend: checking existence: %w", err)
	}

	return count > 0, nil
}

func (b *Backend) Store(ctx context.Context, meas storage.StoredMeasurement, blob io.Reader) error {
	exists, err := b.IsStored(ctx, meas.KeyOf())
	if err != nil {
		return err
	}
	if exists {
		return apierror.New(apierror.ErrDuplicate, "", "measurement already stored")
	}

	blobPath := b.blobPathFor(meas)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o700); err != nil {
		return fmt.Errorf("fsbackend: creating blob subdirectory: %w", err)
	}

	if err := writeBlobFile(blobPath, blob); err != nil {
		return err
	}

	if err := b.insertMetadata(ctx, meas, blobPath); err != nil {
		removeErr := os.Remove(blobPath)
		return errors.Join(err, removeErr)
	}

	return nil
}

func writeBlobFile(path string, blob io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("fsbackend: creating blob file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, blob); err != nil {
		return fmt.Errorf("fsbackend: writing blob: %w", err)
	}

	return f.Sync()
}

func (b *Backend) insertMetadata(ctx context.Context, meas storage.StoredMeasurement, blobPath string) error {
	u := meas.Uploadable

	_, err := b.db.ExecContext(ctx, sqlInsertMeasurement,
		meas.DeviceIdentifier.String(),
		meas.MeasurementIdentifier,
		string(meas.FileType),
		meas.UserID,
		u.DeviceMetaData.OperatingSystemVersion,
		u.DeviceMetaData.DeviceType,
		u.ApplicationMetaData.ApplicationVersion,
		u.MeasurementMetaData.Length,
		u.MeasurementMetaData.LocationCount,
		u.MeasurementMetaData.Modality,
		u.ApplicationMetaData.FormatVersion,
		nullableFloat(u.MeasurementMetaData.StartLocation.Latitude),
		nullableFloat(u.MeasurementMetaData.StartLocation.Longitude),
		nullableInt(u.MeasurementMetaData.StartLocation.TimestampMillis),
		nullableFloat(u.MeasurementMetaData.EndLocation.Latitude),
		nullableFloat(u.MeasurementMetaData.EndLocation.Longitude),
		nullableInt(u.MeasurementMetaData.EndLocation.TimestampMillis),
		blobPath,
		meas.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("fsbackend: inserting metadata: %w", err)
	}

	return nil
}

// An undeclared GeoLocation is its zero value; its absence is already
// captured by locationCount, so these pass the value through unchanged
// rather than mapping zero to SQL NULL.
func nullableFloat(v float64) float64 { return v }
func nullableInt(v int64) int64       { return v }

func (b *Backend) blobPathFor(meas storage.StoredMeasurement) string {
	return filepath.Join(b.blobDir, meas.DeviceIdentifier.String(), fmt.Sprintf("%d-%s", meas.MeasurementIdentifier, meas.FileType))
}

func (b *Backend) Close() error {
	return b.db.Close()
}

// compile-time interface assertion
var _ storage.Backend = (*Backend)(nil)

// DeviceIDFromString is a small exported helper that parses a device id
// the same way the backend does.
func DeviceIDFromString(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("fsbackend: parsing device id: %w", err)
	}

	return id, nil
}
