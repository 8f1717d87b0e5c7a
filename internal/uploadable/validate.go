package uploadable

import (
	"fmt"

	"github.com/sensorvault/upload-gateway/internal/apierror"
)

const maxShortFieldLength = 30

// Validate checks every constraint in the data model against u. The first
// failure is returned wrapped in apierror.ErrInvalidMetadata or a more
// specific sentinel, matching the "first failure yields a typed error"
// rule in the pre-request algorithm.
func Validate(u Uploadable) error {
	if u.DeviceIdentifier.String() == "00000000-0000-0000-0000-000000000000" {
		return fmt.Errorf("%w: deviceIdentifier must not be the nil UUID", apierror.ErrInvalidMetadata)
	}

	if u.MeasurementIdentifier <= 0 {
		return fmt.Errorf("%w: measurementIdentifier must be positive", apierror.ErrInvalidMetadata)
	}

	if err := validateShortField("deviceMetaData.operatingSystemVersion", u.DeviceMetaData.OperatingSystemVersion); err != nil {
		return err
	}

	if err := validateShortField("deviceMetaData.deviceType", u.DeviceMetaData.DeviceType); err != nil {
		return err
	}

	if err := validateShortField("applicationMetaData.applicationVersion", u.ApplicationMetaData.ApplicationVersion); err != nil {
		return err
	}

	if u.ApplicationMetaData.FormatVersion != CurrentFormatVersion {
		if u.ApplicationMetaData.FormatVersion < CurrentFormatVersion {
			return fmt.Errorf("%w: formatVersion %d is older than current %d",
				apierror.ErrDeprecatedFormatVersion, u.ApplicationMetaData.FormatVersion, CurrentFormatVersion)
		}

		return fmt.Errorf("%w: formatVersion %d does not match current %d",
			apierror.ErrUnknownFormatVersion, u.ApplicationMetaData.FormatVersion, CurrentFormatVersion)
	}

	if u.MeasurementMetaData.Length < 0 {
		return fmt.Errorf("%w: measurementMetaData.length must be >= 0", apierror.ErrInvalidMetadata)
	}

	if err := validateLocation("measurementMetaData.startLocation", u.MeasurementMetaData.StartLocation); err != nil {
		return err
	}

	if err := validateLocation("measurementMetaData.endLocation", u.MeasurementMetaData.EndLocation); err != nil {
		return err
	}

	if err := validateShortField("measurementMetaData.modality", u.MeasurementMetaData.Modality); err != nil {
		return err
	}

	if u.HasAttachment {
		a := u.AttachmentMetaData
		if a.LogCount < 0 || a.ImageCount < 0 || a.VideoCount < 0 {
			return fmt.Errorf("%w: attachmentMetaData counts must be >= 0", apierror.ErrInvalidMetadata)
		}

		if !a.Declared() {
			return fmt.Errorf("%w: attachmentMetaData requires at least one count > 0", apierror.ErrInvalidMetadata)
		}
	}

	return nil
}

func validateShortField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s must not be empty", apierror.ErrInvalidMetadata, name)
	}

	if len(value) > maxShortFieldLength {
		return fmt.Errorf("%w: %s must be <= %d characters, got %d",
			apierror.ErrInvalidMetadata, name, maxShortFieldLength, len(value))
	}

	return nil
}

func validateLocation(name string, loc GeoLocation) error {
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("%w: %s.latitude must be in [-90,90], got %f", apierror.ErrInvalidMetadata, name, loc.Latitude)
	}

	if loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("%w: %s.longitude must be in [-180,180], got %f", apierror.ErrInvalidMetadata, name, loc.Longitude)
	}

	return nil
}

// ShouldSkipUpload implements the pre-request "skip-upload" semantic
// predicate: formatVersion deprecated (handled separately by Validate, so
// this only checks locationCount and attachment file size), or
// locationCount < 2, or filesSize <= 0 when attachments are declared.
func ShouldSkipUpload(u Uploadable) error {
	if u.MeasurementMetaData.LocationCount < 2 {
		return fmt.Errorf("%w: locationCount %d < 2", apierror.ErrTooFewLocations, u.MeasurementMetaData.LocationCount)
	}

	if u.HasAttachment && u.AttachmentMetaData.FilesSize <= 0 {
		return fmt.Errorf("%w: attachments declared but filesSize <= 0", apierror.ErrSkipUpload)
	}

	return nil
}
