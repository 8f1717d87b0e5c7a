package uploadable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorvault/upload-gateway/internal/apierror"
)

func TestValidateAcceptsWellFormedUploadable(t *testing.T) {
	require.NoError(t, Validate(validUploadable()))
}

func TestValidateRejectsNilDeviceID(t *testing.T) {
	u := validUploadable()
	u.DeviceIdentifier = [16]byte{}

	err := Validate(u)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrInvalidMetadata)
}

func TestValidateRejectsNonPositiveMeasurementID(t *testing.T) {
	u := validUploadable()
	u.MeasurementIdentifier = 0

	assert.ErrorIs(t, Validate(u), apierror.ErrInvalidMetadata)
}

func TestValidateRejectsOverlongShortField(t *testing.T) {
	u := validUploadable()
	u.DeviceMetaData.DeviceType = "this-device-type-string-is-longer-than-thirty-chars"

	assert.ErrorIs(t, Validate(u), apierror.ErrInvalidMetadata)
}

func TestValidateRejectsDeprecatedFormatVersion(t *testing.T) {
	u := validUploadable()
	u.ApplicationMetaData.FormatVersion = CurrentFormatVersion - 1

	assert.ErrorIs(t, Validate(u), apierror.ErrDeprecatedFormatVersion)
}

func TestValidateRejectsUnknownFormatVersion(t *testing.T) {
	u := validUploadable()
	u.ApplicationMetaData.FormatVersion = CurrentFormatVersion + 1

	assert.ErrorIs(t, Validate(u), apierror.ErrUnknownFormatVersion)
}

func TestValidateRejectsOutOfRangeLatitude(t *testing.T) {
	u := validUploadable()
	u.MeasurementMetaData.StartLocation.Latitude = 91

	assert.ErrorIs(t, Validate(u), apierror.ErrInvalidMetadata)
}

func TestValidateRejectsOutOfRangeLongitude(t *testing.T) {
	u := validUploadable()
	u.MeasurementMetaData.EndLocation.Longitude = -181

	assert.ErrorIs(t, Validate(u), apierror.ErrInvalidMetadata)
}

func TestValidateRejectsUndeclaredAttachment(t *testing.T) {
	u := validUploadable()
	u.HasAttachment = true

	assert.ErrorIs(t, Validate(u), apierror.ErrInvalidMetadata)
}

func TestShouldSkipUploadRejectsTooFewLocations(t *testing.T) {
	u := validUploadable()
	u.MeasurementMetaData.LocationCount = 1

	assert.ErrorIs(t, ShouldSkipUpload(u), apierror.ErrTooFewLocations)
}

func TestShouldSkipUploadRejectsZeroFilesSizeWithAttachment(t *testing.T) {
	u := validUploadable()
	u.HasAttachment = true
	u.AttachmentMetaData = AttachmentMetaData{LogCount: 1, FilesSize: 0}

	assert.ErrorIs(t, ShouldSkipUpload(u), apierror.ErrSkipUpload)
}

func TestShouldSkipUploadAcceptsWellFormedUploadable(t *testing.T) {
	assert.NoError(t, ShouldSkipUpload(validUploadable()))
}
