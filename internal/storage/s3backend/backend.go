// Package s3backend implements storage.Backend on an S3-compatible
// object store: the blob as one object, its metadata as a JSON sidecar
// object under the same deterministic key prefix, with a conditional
// (if-none-match) put enforcing the uniqueness invariant without a
// separate index.
package s3backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/storage"
)

// Backend stores blobs and metadata sidecars as objects in bucket under
// prefix.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// Open builds an S3 client. region/endpoint select a specific
// S3-compatible provider; an empty endpoint uses AWS's default resolver.
func Open(ctx context.Context, bucket, region, endpoint, prefix string) (*Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3backend: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Backend{client: client, bucket: bucket, prefix: prefix}, nil
}

// EnsureIndexes is a no-op: uniqueness is enforced per-object via
// conditional puts rather than a separate index structure.
func (b *Backend) EnsureIndexes(context.Context) error {
	return nil
}

func (b *Backend) blobKey(key storage.Key) string {
	return fmt.Sprintf("%s%s/%d/%s.blob", b.prefix, key.DeviceIdentifier, key.MeasurementIdentifier, key.FileType)
}

func (b *Backend) metadataKey(key storage.Key) string {
	return fmt.Sprintf("%s%s/%d/%s.json", b.prefix, key.DeviceIdentifier, key.MeasurementIdentifier, key.FileType)
}

func (b *Backend) IsStored(ctx context.Context, key storage.Key) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.metadataKey(key)),
	})
	if err == nil {
		return true, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}

	return false, fmt.Errorf("s3backend: checking existence: %w", err)
}

// sidecarMetadata is the JSON document stored alongside the blob,
// carrying the scalar metadata keys of the other backends. The start and
// end locations are not stored in it.
type sidecarMetadata struct {
	DeviceID      string  `json:"deviceId"`
	MeasurementID string  `json:"measurementId"`
	FileType      string  `json:"fileType"`
	UserID        string  `json:"userId"`
	OSVersion     string  `json:"osVersion"`
	DeviceType    string  `json:"deviceType"`
	AppVersion    string  `json:"appVersion"`
	Length        float64 `json:"length"`
	LocationCount int     `json:"locationCount"`
	Modality      string  `json:"modality"`
	FormatVersion int     `json:"formatVersion"`
}

func (b *Backend) Store(ctx context.Context, meas storage.StoredMeasurement, blob io.Reader) error {
	key := meas.KeyOf()

	data, err := io.ReadAll(blob)
	if err != nil {
		return fmt.Errorf("s3backend: reading blob: %w", err)
	}

	u := meas.Uploadable
	sidecar := sidecarMetadata{
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
	}

	sidecarBody, err := json.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("s3backend: marshaling sidecar: %w", err)
	}

	// The metadata sidecar is the uniqueness gate: it is put conditionally
	// (If-None-Match: *) first, and the blob follows only on success, so a
	// racing duplicate never gets a blob written for a key that loses the
	// sidecar race.
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.metadataKey(key)),
		Body:        bytes.NewReader(sidecarBody),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "412") {
			return apierror.New(apierror.ErrDuplicate, "", "measurement already stored")
		}

		return fmt.Errorf("s3backend: putting sidecar: %w", err)
	}

	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.blobKey(key)),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return fmt.Errorf("s3backend: putting blob: %w", err)
	}

	return nil
}

func (b *Backend) Close() error {
	return nil
}

var _ storage.Backend = (*Backend)(nil)
