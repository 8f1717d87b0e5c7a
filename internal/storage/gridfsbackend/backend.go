// Package gridfsbackend implements storage.Backend on MongoDB GridFS:
// blobs as GridFS files, metadata as sibling documents shaped exactly
// per the bit-exact GeoJSON key set, with a server-side unique compound
// index enforcing the storage invariant.
package gridfsbackend

import (
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/storage"
	"github.com/sensorvault/upload-gateway/internal/uploadable"
)

const metadataCollectionName = "measurements_metadata"

// Backend persists blobs in a GridFS bucket and metadata documents in a
// sibling collection in the same database.
type Backend struct {
	client   *mongo.Client
	database *mongo.Database
	bucket   *gridfs.Bucket
	metadata *mongo.Collection
}

// Open connects to uri and prepares the bucket named bucketName within
// database.
func Open(ctx context.Context, uri, database, bucketName string) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("gridfsbackend: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("gridfsbackend: pinging: %w", err)
	}

	db := client.Database(database)

	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("gridfsbackend: creating bucket: %w", err)
	}

	return &Backend{
		client:   client,
		database: db,
		bucket:   bucket,
		metadata: db.Collection(metadataCollectionName),
	}, nil
}

// EnsureIndexes creates the unique compound index on
// (metadata.deviceId, metadata.measurementId, metadata.fileType), per
// the storage service's startup indexing requirement.
func (b *Backend) EnsureIndexes(ctx context.Context) error {
	_, err := b.metadata.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "metadata.deviceId", Value: 1},
			{Key: "metadata.measurementId", Value: 1},
			{Key: "metadata.fileType", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("gridfsbackend: creating unique index: %w", err)
	}

	return nil
}

func (b *Backend) filter(key storage.Key) bson.D {
	return bson.D{
		{Key: "metadata.deviceId", Value: key.DeviceIdentifier.String()},
		{Key: "metadata.measurementId", Value: fmt.Sprintf("%d", key.MeasurementIdentifier)},
		{Key: "metadata.fileType", Value: string(key.FileType)},
	}
}

func (b *Backend) IsStored(ctx context.Context, key storage.Key) (bool, error) {
	count, err := b.metadata.CountDocuments(ctx, b.filter(key))
	if err != nil {
		return false, fmt.Errorf("gridfsbackend: counting: %w", err)
	}

	return count > 0, nil
}

// geoPoint is the GeoJSON shape used for start/end location documents.
type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type locationDoc struct {
	Location  geoPoint `bson:"location"`
	Timestamp int64    `bson:"timestamp"`
}

type metadataDoc struct {
	DeviceID      string       `bson:"deviceId"`
	MeasurementID string       `bson:"measurementId"`
	FileType      string       `bson:"fileType"`
	UserID        string       `bson:"userId"`
	OSVersion     string       `bson:"osVersion"`
	DeviceType    string       `bson:"deviceType"`
	AppVersion    string       `bson:"appVersion"`
	Length        float64      `bson:"length"`
	LocationCount int          `bson:"locationCount"`
	Modality      string       `bson:"modality"`
	FormatVersion int          `bson:"formatVersion"`
	Start         *locationDoc `bson:"start,omitempty"`
	End           *locationDoc `bson:"end,omitempty"`
}

type fileDoc struct {
	FileID   any         `bson:"fileId"`
	Metadata metadataDoc `bson:"metadata"`
}

func (b *Backend) Store(ctx context.Context, meas storage.StoredMeasurement, blob io.Reader) error {
	exists, err := b.IsStored(ctx, meas.KeyOf())
	if err != nil {
		return err
	}
	if exists {
		return apierror.New(apierror.ErrDuplicate, "", "measurement already stored")
	}

	u := meas.Uploadable

	uploadStream, err := b.bucket.OpenUploadStream(ctx, fmt.Sprintf("%s-%d-%s", meas.DeviceIdentifier, meas.MeasurementIdentifier, meas.FileType))
	if err != nil {
		return fmt.Errorf("gridfsbackend: opening upload stream: %w", err)
	}

	if _, err := io.Copy(uploadStream, blob); err != nil {
		uploadStream.Close()
		return fmt.Errorf("gridfsbackend: writing blob: %w", err)
	}

	if err := uploadStream.Close(); err != nil {
		return fmt.Errorf("gridfsbackend: closing upload stream: %w", err)
	}

	doc := fileDoc{
		FileID: uploadStream.FileID,
		Metadata: metadataDoc{
			DeviceID:      meas.DeviceIdentifier.String(),
			MeasurementID: fmt.Sprintf("%d", meas.MeasurementIdentifier),
			FileType:      string(meas.FileType),
			UserID:        meas.UserID,
			OSVersion:     u.DeviceMetaData.OperatingSystemVersion,
			DeviceType:    u.DeviceMetaData.DeviceType,
			AppVersion:    u.ApplicationMetaData.ApplicationVersion,
			Length:        u.MeasurementMetaData.Length,
			LocationCount: u.MeasurementMetaData.LocationCount,
			Modality:      u.MeasurementMetaData.Modality,
			FormatVersion: u.ApplicationMetaData.FormatVersion,
			Start:         locationDocFor(u.MeasurementMetaData.LocationCount, u.MeasurementMetaData.StartLocation),
			End:           locationDocFor(u.MeasurementMetaData.LocationCount, u.MeasurementMetaData.EndLocation),
		},
	}

	if _, err := b.metadata.InsertOne(ctx, doc); err != nil {
		// The blob was already committed to GridFS; a metadata insert
		// failure (most likely the unique index) leaves that file in
		// place as an orphan; no cross-collection rollback is attempted
		// and nothing in this package removes it later.
		if mongo.IsDuplicateKeyError(err) {
			return apierror.New(apierror.ErrDuplicate, "", "measurement already stored")
		}

		return fmt.Errorf("gridfsbackend: inserting metadata: %w", err)
	}

	return nil
}

func locationDocFor(locationCount int, loc uploadable.GeoLocation) *locationDoc {
	if locationCount < 1 {
		return nil
	}

	return &locationDoc{
		Location:  geoPoint{Type: "Point", Coordinates: []float64{loc.Longitude, loc.Latitude}},
		Timestamp: loc.TimestampMillis,
	}
}

func (b *Backend) Close() error {
	return b.client.Disconnect(context.Background())
}

var _ storage.Backend = (*Backend)(nil)
