package uploadable

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFileTypeDefaultsToMeasurement(t *testing.T) {
	u := Uploadable{}
	assert.Equal(t, FileTypeMeasurement, u.FileType())
}

func TestFileTypePicksAttachmentCategory(t *testing.T) {
	u := Uploadable{AttachmentIdentifier: "att-1", AttachmentMetaData: AttachmentMetaData{ImageCount: 2}}
	assert.Equal(t, FileTypeImage, u.FileType())

	u = Uploadable{AttachmentIdentifier: "att-1", AttachmentMetaData: AttachmentMetaData{VideoCount: 1}}
	assert.Equal(t, FileTypeVideo, u.FileType())

	u = Uploadable{AttachmentIdentifier: "att-1", AttachmentMetaData: AttachmentMetaData{LogCount: 3}}
	assert.Equal(t, FileTypeLog, u.FileType())
}

func TestAttachmentMetaDataDeclared(t *testing.T) {
	assert.False(t, AttachmentMetaData{}.Declared())
	assert.True(t, AttachmentMetaData{LogCount: 1}.Declared())
}

func validUploadable() Uploadable {
	return Uploadable{
		DeviceIdentifier:      uuid.New(),
		MeasurementIdentifier: 1,
		DeviceMetaData: DeviceMetaData{
			OperatingSystemVersion: "14.2",
			DeviceType:             "phone",
		},
		ApplicationMetaData: ApplicationMetaData{
			ApplicationVersion: "1.0.0",
			FormatVersion:      CurrentFormatVersion,
		},
		MeasurementMetaData: MeasurementMetaData{
			Length:        0.0,
			LocationCount: 2,
			StartLocation: GeoLocation{TimestampMillis: 1, Latitude: 1, Longitude: 1},
			EndLocation:   GeoLocation{TimestampMillis: 2, Latitude: 2, Longitude: 2},
			Modality:      "walk",
		},
	}
}
