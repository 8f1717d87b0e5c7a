// Package uploadable defines the caller-supplied metadata describing a
// measurement upload, its validation rules, and its JSON wire shape.
package uploadable

import "github.com/google/uuid"

// CurrentFormatVersion is the only formatVersion accepted on ingest.
const CurrentFormatVersion = 3

// DeviceMetaData describes the originating device.
type DeviceMetaData struct {
	OperatingSystemVersion string
	DeviceType             string
}

// ApplicationMetaData describes the client application that produced the
// upload.
type ApplicationMetaData struct {
	ApplicationVersion string
	FormatVersion      int
}

// GeoLocation is a single timestamped coordinate.
type GeoLocation struct {
	TimestampMillis int64
	Latitude        float64
	Longitude       float64
}

// MeasurementMetaData describes the measurement itself.
type MeasurementMetaData struct {
	Length        float64
	LocationCount int
	StartLocation GeoLocation
	EndLocation   GeoLocation
	Modality      string
}

// AttachmentMetaData describes optional attachment files riding alongside
// the primary measurement. The zero value means "no attachments declared".
type AttachmentMetaData struct {
	LogCount   int
	ImageCount int
	VideoCount int
	FilesSize  int64
}

// Declared reports whether any attachment was declared.
func (a AttachmentMetaData) Declared() bool {
	return a.LogCount > 0 || a.ImageCount > 0 || a.VideoCount > 0
}

// Uploadable is the caller-supplied metadata describing what is being
// uploaded. Immutable after pre-request acceptance.
type Uploadable struct {
	DeviceIdentifier      uuid.UUID
	MeasurementIdentifier int64

	DeviceMetaData      DeviceMetaData
	ApplicationMetaData ApplicationMetaData
	MeasurementMetaData MeasurementMetaData
	AttachmentMetaData  AttachmentMetaData
	HasAttachment       bool

	// AttachmentIdentifier distinguishes multiple attachments sharing the
	// same (deviceId, measurementId) but differing file type.
	AttachmentIdentifier string
}

// FileType classifies a StoredMeasurement for the compound uniqueness key.
type FileType string

const (
	FileTypeMeasurement FileType = "measurement"
	FileTypeLog         FileType = "log"
	FileTypeImage       FileType = "image"
	FileTypeVideo       FileType = "video"
)

// FileType derives the StoredMeasurement file type this Uploadable
// describes. A pre-request with no AttachmentIdentifier is the primary
// measurement; one with an AttachmentIdentifier carries an attachment, and
// its file type is the first declared attachment category in
// image/video/log priority order (image and video are rarer and more
// specific than the catch-all log category).
func (u Uploadable) FileType() FileType {
	if u.AttachmentIdentifier == "" {
		return FileTypeMeasurement
	}

	switch {
	case u.AttachmentMetaData.ImageCount > 0:
		return FileTypeImage
	case u.AttachmentMetaData.VideoCount > 0:
		return FileTypeVideo
	default:
		return FileTypeLog
	}
}
