package uploadable

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// wire mirrors the pre-request JSON body's exhaustive field set exactly
// (see the metadata JSON field set in the external interfaces). Unexported
// — callers use Uploadable via FromJSON/ToJSON.
type wire struct {
	DeviceID      string  `json:"deviceId"`
	MeasurementID int64   `json:"measurementId"`
	DeviceType    string  `json:"deviceType"`
	OSVersion     string  `json:"osVersion"`
	AppVersion    string  `json:"appVersion"`
	Length        float64 `json:"length"`
	LocationCount int     `json:"locationCount"`
	StartLocLat   float64 `json:"startLocLat"`
	StartLocLon   float64 `json:"startLocLon"`
	StartLocTS    int64   `json:"startLocTS"`
	EndLocLat     float64 `json:"endLocLat"`
	EndLocLon     float64 `json:"endLocLon"`
	EndLocTS      int64   `json:"endLocTS"`
	Modality      string  `json:"modality"`
	FormatVersion int     `json:"formatVersion"`

	AttachmentID string `json:"attachmentId,omitempty"`
	LogCount     int    `json:"logCount,omitempty"`
	ImageCount   int    `json:"imageCount,omitempty"`
	VideoCount   int    `json:"videoCount,omitempty"`
	FilesSize    int64  `json:"filesSize,omitempty"`
}

// FromJSON parses the pre-request body into an Uploadable. It performs no
// semantic validation beyond what's needed to construct the nested
// shape — callers run Validate separately so malformed-JSON and
// out-of-range errors stay distinguishable (Unparsable vs InvalidMetaData).
func FromJSON(data []byte) (Uploadable, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Uploadable{}, fmt.Errorf("uploadable: decoding json: %w", err)
	}

	deviceID, err := uuid.Parse(w.DeviceID)
	if err != nil {
		return Uploadable{}, fmt.Errorf("uploadable: deviceId: %w", err)
	}

	u := Uploadable{
		DeviceIdentifier:      deviceID,
		MeasurementIdentifier: w.MeasurementID,
		DeviceMetaData: DeviceMetaData{
			OperatingSystemVersion: w.OSVersion,
			DeviceType:             w.DeviceType,
		},
		ApplicationMetaData: ApplicationMetaData{
			ApplicationVersion: w.AppVersion,
			FormatVersion:      w.FormatVersion,
		},
		MeasurementMetaData: MeasurementMetaData{
			Length:        w.Length,
			LocationCount: w.LocationCount,
			StartLocation: GeoLocation{
				TimestampMillis: w.StartLocTS,
				Latitude:        w.StartLocLat,
				Longitude:       w.StartLocLon,
			},
			EndLocation: GeoLocation{
				TimestampMillis: w.EndLocTS,
				Latitude:        w.EndLocLat,
				Longitude:       w.EndLocLon,
			},
			Modality: w.Modality,
		},
		AttachmentIdentifier: w.AttachmentID,
	}

	if w.AttachmentID != "" {
		u.AttachmentMetaData = AttachmentMetaData{
			LogCount:   w.LogCount,
			ImageCount: w.ImageCount,
			VideoCount: w.VideoCount,
			FilesSize:  w.FilesSize,
		}
		u.HasAttachment = true
	}

	return u, nil
}

// ToJSON renders an Uploadable back to the flat wire shape, the inverse of
// FromJSON; the tests use it to build pre-request bodies.
func ToJSON(u Uploadable) ([]byte, error) {
	w := wire{
		DeviceID:      u.DeviceIdentifier.String(),
		MeasurementID: u.MeasurementIdentifier,
		DeviceType:    u.DeviceMetaData.DeviceType,
		OSVersion:     u.DeviceMetaData.OperatingSystemVersion,
		AppVersion:    u.ApplicationMetaData.ApplicationVersion,
		Length:        u.MeasurementMetaData.Length,
		LocationCount: u.MeasurementMetaData.LocationCount,
		StartLocLat:   u.MeasurementMetaData.StartLocation.Latitude,
		StartLocLon:   u.MeasurementMetaData.StartLocation.Longitude,
		StartLocTS:    u.MeasurementMetaData.StartLocation.TimestampMillis,
		EndLocLat:     u.MeasurementMetaData.EndLocation.Latitude,
		EndLocLon:     u.MeasurementMetaData.EndLocation.Longitude,
		EndLocTS:      u.MeasurementMetaData.EndLocation.TimestampMillis,
		Modality:      u.MeasurementMetaData.Modality,
		FormatVersion: u.ApplicationMetaData.FormatVersion,
		AttachmentID:  u.AttachmentIdentifier,
	}

	if u.HasAttachment {
		w.LogCount = u.AttachmentMetaData.LogCount
		w.ImageCount = u.AttachmentMetaData.ImageCount
		w.VideoCount = u.AttachmentMetaData.VideoCount
		w.FilesSize = u.AttachmentMetaData.FilesSize
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("uploadable: encoding json: %w", err)
	}

	return data, nil
}
